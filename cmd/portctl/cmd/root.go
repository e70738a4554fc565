// Package cmd contains all CLI commands for portctl.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-port-registry/pkg/client"
)

var (
	// Global flags
	registryURL string
)

// newClient builds a registry client honoring the --url flag and the
// PORT_REGISTRY_URL environment variable.
func newClient() *client.Client {
	if registryURL != "" {
		return client.New(client.WithBaseURL(registryURL))
	}
	return client.New()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "portctl",
	Short: "CLI tool for the port registry",
	Long: `portctl talks to a running port registry daemon: request a port for
a service, release it, look up existing assignments and check whether
a port is free.

The registry URL is taken from --url, then the PORT_REGISTRY_URL
environment variable, then http://localhost:4444.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryURL, "url", "", "Registry base URL")
}

// printTable prints data in a simple table format
func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Printf("%-*s  ", widths[i], h)
	}
	fmt.Println()
	for i := range headers {
		fmt.Printf("%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Println()
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Printf("%-*s  ", widths[i], cell)
			}
		}
		fmt.Println()
	}
}
