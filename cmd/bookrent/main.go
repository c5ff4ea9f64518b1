// Command bookrent runs the subscription payment service.
//
//	bookrent serve       # HTTP server, notification worker and reconciler
//	bookrent reconcile   # one reconciliation pass, then exit
//	bookrent plans       # print the active plan catalog
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bookrent:", err)
		os.Exit(1)
	}
}
