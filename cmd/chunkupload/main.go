// Package main is the chunkupload command-line entrypoint: a single
// cobra binary that resolves configuration, wires the upload pipeline
// of internal/uploader, and renders per-file progress bars while
// uploading the files given on the command line.
package main

import (
	"fmt"
	"os"
)

// Version and BuildTime are overridden at link time via -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
