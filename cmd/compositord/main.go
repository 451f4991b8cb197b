// Command compositord runs the chroma-key compositor as a service and keys
// still images offline.
//
// Usage:
//
//	compositord run --config config/compositor.yaml
//	compositord key portrait.jpg -o portrait.png --white-threshold 0.9
//	compositord version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
