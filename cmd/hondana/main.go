package main

import (
	"fmt"
	"os"

	"github.com/masahif/hondana/internal/book"
	"github.com/masahif/hondana/internal/cmd"
)

const (
	exitFailure         = 1
	exitRootUnavailable = 2
)

// Version information set by build flags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd.SetVersionInfo(Version, BuildTime)

	err := cmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if book.IsRootUnavailable(err) {
		os.Exit(exitRootUnavailable)
	}
	os.Exit(exitFailure)
}
