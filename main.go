// The main package for the radar executable.
package main

import (
	"github.com/JakeFAU/hotlist-radar/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
