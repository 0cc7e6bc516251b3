package main

import (
	"github.com/rctelem/sport.go/pkg/cli/env"
	"github.com/rctelem/sport.go/pkg/cli/sh"

	_ "github.com/rctelem/sport.go/pkg/cli/cmds/device"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
