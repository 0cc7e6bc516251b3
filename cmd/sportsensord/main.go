package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/rctelem/sport.go/pkg/bridge"
	"github.com/rctelem/sport.go/pkg/framework"
)

var configFile = "sportsensord.yml"

func init() {
	flag.StringVar(&configFile, "config", configFile, "Bridge configuration file.")
}

func main() {
	flag.Parse()

	conf, err := bridge.Load(configFile)
	if err != nil {
		glog.Exitf("load config: %v", err)
	}
	br, err := bridge.New(conf)
	if err != nil {
		glog.Exitf("setup: %v", err)
	}

	err = framework.NewRunner().
		HandleSignals().
		Go(framework.NamedRun("bridge", br)).
		Wait()
	if err != nil {
		glog.Exit(err)
	}
}
