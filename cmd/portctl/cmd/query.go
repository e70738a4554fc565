package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <service>",
	Short: "Look up the port registered for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, found, err := newClient().RegisteredPort(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("service %q not registered", args[0])
		}
		fmt.Println(port)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <port>",
	Short: "Check whether a port is free",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("port must be an integer: %q", args[0])
		}

		result, err := newClient().CheckPort(cmd.Context(), port)
		if err != nil {
			return err
		}

		switch {
		case result.RegisteredTo != nil:
			fmt.Printf("port %d is registered to %s\n", port, *result.RegisteredTo)
		case result.InUse:
			fmt.Printf("port %d is in use outside the registry\n", port)
		default:
			fmt.Printf("port %d is free\n", port)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered services",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := newClient().ListPorts(cmd.Context())
		if err != nil {
			return err
		}
		if len(services) == 0 {
			fmt.Println("No services registered.")
			return nil
		}

		names := make([]string, 0, len(services))
		for name := range services {
			names = append(names, name)
		}
		sort.Strings(names)

		headers := []string{"SERVICE", "PORT", "STATUS", "IN USE", "PROJECT"}
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			info := services[name]
			port := ""
			if p, ok := info["port"].(float64); ok {
				port = strconv.Itoa(int(p))
			}
			inUse := "no"
			if b, ok := info["in_use"].(bool); ok && b {
				inUse = "yes"
			}
			status, _ := info["status"].(string)
			project, _ := info["project"].(string)
			rows = append(rows, []string{name, port, status, inUse, project})
		}
		printTable(headers, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listCmd)
}
