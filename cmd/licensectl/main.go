// Command licensectl administers the license catalog and the activation
// of this installation directly against the configured store.
package main

import (
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
