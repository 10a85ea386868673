// regorusctl -- command-line client for the regorusd control API.
package main

import "github.com/dantte-lp/regorus/cmd/regorusctl/commands"

func main() {
	commands.Execute()
}
