// Package main is the POS core daemon and maintenance CLI. The daemon
// serves the local terminal UI over HTTP/WebSocket on localhost and
// keeps the cache and operation queue in sync with the ERP backend.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
