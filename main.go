// The main package for the proyectos-ley executable.
package main

import (
	"github.com/openpolitica/proyectos-ley/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
