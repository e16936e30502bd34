// The main package for the wayback-crawler executable.
package main

import (
	"github.com/JakeFAU/wayback-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
