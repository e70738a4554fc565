// Package main provides the portctl CLI tool for talking to a running
// port registry daemon.
package main

import (
	"os"

	"github.com/sirosfoundation/go-port-registry/cmd/portctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
