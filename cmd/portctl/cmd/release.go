package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release <service>",
	Short: "Release a service's port",
	Long: `Release the port held by a service so it becomes available for
reassignment. Releasing a service that holds nothing is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if newClient().Release(cmd.Context(), args[0]) {
			fmt.Printf("released %s\n", args[0])
		} else {
			fmt.Printf("nothing to release for %s\n", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}
