// Command plagcheck is a command-line client for the plagcheck backend.
package main

import (
	"os"
)

func main() {
	root, a := newRootCmd(os.Stdout, os.Stderr)
	err := root.Execute()
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Exit(1)
	}
}
