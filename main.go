// The main package for the serial-epub executable.
package main

import "github.com/JakeFAU/serial-epub/cmd"

func main() {
	cmd.Execute()
}
