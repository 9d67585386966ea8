package main

import (
	"fmt"
	"os"

	"github.com/tphakala/pulsebridge/cmd"
	"github.com/tphakala/pulsebridge/internal/buildinfo"
	"github.com/tphakala/pulsebridge/internal/conf"
)

// set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = ""
	buildDate = ""
)

func main() {
	settings := &conf.Settings{}
	build := buildinfo.NewContext(version, buildDate)

	if err := cmd.Execute(settings, build); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
