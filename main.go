package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tphakala/voicechanger/cmd"
	"github.com/tphakala/voicechanger/internal/buildinfo"
)

// buildDate and version are set at build time with -ldflags
var (
	buildDate string
	version   string
)

func main() {
	info := buildinfo.NewContext(version, buildDate, "")

	if err := cmd.RootCommand(info).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
