package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/rctelem/sport.go/pkg/mqtt"
)

var (
	mqttURL    = "mqtt://localhost:1883/sport/"
	listenAddr = ""
)

func init() {
	if val := os.Getenv("SPORT_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&listenAddr, "listen", listenAddr, "Address serving the websocket event stream, empty to disable.")
}

// frame mirrors the JSON the bridge publishes for every answered poll.
type frame struct {
	Type  byte   `json:"type"`
	ID    uint16 `json:"id"`
	Value int32  `json:"value"`
	Raw   string `json:"raw"`
}

// event is one rebroadcast entry on the websocket stream.
type event struct {
	Topic string          `json:"topic"`
	Frame json.RawMessage `json:"frame"`
}

// caster fans events out to connected websocket watchers.
type caster struct {
	lock     sync.Mutex
	watchers map[*websocket.Conn]struct{}
}

func newCaster() *caster {
	return &caster{watchers: make(map[*websocket.Conn]struct{})}
}

// serve holds a watcher connection until the peer goes away. Inbound
// data is ignored.
func (cs *caster) serve(conn *websocket.Conn) {
	cs.lock.Lock()
	cs.watchers[conn] = struct{}{}
	cs.lock.Unlock()
	defer func() {
		cs.lock.Lock()
		delete(cs.watchers, conn)
		cs.lock.Unlock()
	}()
	var msg []byte
	for websocket.Message.Receive(conn, &msg) == nil {
	}
}

func (cs *caster) cast(out []byte) {
	cs.lock.Lock()
	conns := make([]*websocket.Conn, 0, len(cs.watchers))
	for conn := range cs.watchers {
		conns = append(conns, conn)
	}
	cs.lock.Unlock()
	for _, conn := range conns {
		if err := websocket.Message.Send(conn, out); err != nil {
			conn.Close()
		}
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	cs := newCaster()
	if listenAddr != "" {
		http.Handle("/events", websocket.Handler(cs.serve))
		go func() {
			log.Fatalln(http.ListenAndServe(listenAddr, nil))
		}()
	}

	q.Sub("sent/#", func(topic string, payload []byte) {
		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			log.Printf("%s: bad frame: %v", topic, err)
			return
		}
		log.Printf("%s: type %#02x id %04x value %d raw %s", topic, f.Type, f.ID, f.Value, f.Raw)
		if listenAddr == "" {
			return
		}
		out, err := json.Marshal(event{Topic: topic, Frame: payload})
		if err != nil {
			return
		}
		cs.cast(out)
	})

	if tok := q.Connect(); tok.Wait() && tok.Error() != nil {
		log.Fatalln(tok.Error())
	}
	<-(chan struct{})(nil)
}
