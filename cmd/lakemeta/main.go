// Command lakemeta inspects and maintains the metadata of a lake table.
package main

import (
	"os"
)

func main() {
	a := &app{}
	root := newRootCmd(a)
	err := root.Execute()
	a.close(root.OutOrStdout())
	if err != nil {
		os.Exit(1)
	}
}
