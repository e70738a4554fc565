package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-port-registry/pkg/client"
)

var (
	requestProject     string
	requestDescription string
	requestPreferred   int
	requestFallback    int
)

var requestCmd = &cobra.Command{
	Use:   "request <service>",
	Short: "Request a port for a service",
	Long: `Request a port for a service. The same service always gets the same
port back while its assignment is active. Only the port number is
printed on stdout, so the command can be used directly in scripts:

  PORT=$(portctl request my-service --project myproject)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := newClient().GetPort(cmd.Context(), client.PortRequest{
			Service:       args[0],
			Project:       requestProject,
			Description:   requestDescription,
			PreferredPort: requestPreferred,
			Fallback:      requestFallback,
		})
		if err != nil {
			return err
		}
		fmt.Println(port)
		return nil
	},
}

func init() {
	requestCmd.Flags().StringVar(&requestProject, "project", "", "Project label")
	requestCmd.Flags().StringVar(&requestDescription, "description", "", "Description label")
	requestCmd.Flags().IntVar(&requestPreferred, "preferred", 0, "Preferred port number")
	requestCmd.Flags().IntVar(&requestFallback, "fallback", 0, "Port to use when the registry is unreachable")
	rootCmd.AddCommand(requestCmd)
}
