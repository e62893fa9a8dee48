// Command taleforge is the operator-facing CLI over the Version Engine,
// Run Engine and Fork Handler.
package main

import "github.com/jvs-project/taleforge/internal/cli"

func main() {
	cli.Execute()
}
