// The main package for the batchwatch executable.
package main

import (
	"github.com/batchops/batchwatch/cmd"
)

func main() {
	cmd.Execute()
}
