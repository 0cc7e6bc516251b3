package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/rctelem/sport.go/pkg/cli/env"
	"github.com/rctelem/sport.go/pkg/serialport"
	"github.com/rctelem/sport.go/pkg/sport"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell   *ishell.Shell
	Config  *env.Config
	Session *Session
}

// Session is an open serial device with the sensor bound to it.
type Session struct {
	Ctx    context.Context
	Cancel func()
	Port   *serialport.Port
	Device *sport.Device

	listening bool
}

// Listening reports whether the sensor loop is serving polls.
func (s *Session) Listening() bool {
	return s.listening
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an open device.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("no open device"))
			return
		}
		fn(c)
	}
}

// Emit prints a command result, as JSON when -json is set.
func Emit(c *ishell.Context, v interface{}, text string) error {
	s := ShellFrom(c)
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	c.Println(text)
	return nil
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens a serial device and binds a fresh sensor to it.
func (s *Shell) Open(cfg serialport.Config) error {
	port, err := serialport.Open(cfg)
	if err != nil {
		return err
	}
	if s.Session != nil {
		s.Close()
	}
	session := &Session{Port: port, Device: sport.NewDevice(port)}
	session.Ctx, session.Cancel = context.WithCancel(context.Background())
	s.Session = session
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", cfg.Device))
	return nil
}

// Close shuts down the current session.
func (s *Shell) Close() {
	if s.Session != nil {
		s.Session.Cancel()
		s.Session.Port.Close()
		s.Session = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Listen configures the sensor identity and starts serving polls in
// the background. One session carries at most one identity; close and
// reopen the device to change it.
func (s *Shell) Listen(sensorID byte, sensorCount int, idWait time.Duration) error {
	if s.Session == nil {
		return fmt.Errorf("no open device")
	}
	if s.Session.listening {
		return fmt.Errorf("already listening")
	}
	dev := s.Session.Device
	if err := dev.Begin(sensorID, sensorCount); err != nil {
		return err
	}
	dev.IDWait = idWait
	s.Session.listening = true
	go func(ctx context.Context) {
		err := dev.Run(ctx)
		if err != nil && err != context.Canceled && err != serialport.ErrClosed {
			log.Printf("listen %#02x stopped: %v", sensorID, err)
		}
	}(s.Session.Ctx)
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.Device != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.Device)
		}
		if err := s.Open(s.Config.SerialConfig()); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.Device, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists serial devices on this host.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := serialport.List()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(ports) == 0 {
					// in case ports is nil, make it empty slice.
					ports = []string{}
				}
				out, err := json.Marshal(ports)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(ports) == 0 {
				c.Println("No serial devices found")
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	}

	// OpenCmd opens a serial device.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[DEVICE [BAUD]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			cfg := s.Config.SerialConfig()
			if len(c.Args) > 0 {
				cfg.Device = c.Args[0]
			}
			if len(c.Args) > 1 {
				baud, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(fmt.Errorf("invalid baud %q", c.Args[1]))
					return
				}
				cfg.Baud = baud
			}
			if cfg.Device == "" {
				c.Err(fmt.Errorf("device expected"))
				return
			}
			if err := s.Open(cfg); err != nil {
				c.Err(err)
				return
			}
		},
	}

	// CloseCmd closes the current device.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoOpen(true).Run(flag.Args()...)
}
