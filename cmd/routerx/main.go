package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "routerx",
		Short: "Route registry and navigation router",
		Long: `routerx resolves navigation paths against generated route tables,
filters them through interceptors and hands them to a host.

Without --config the built-in defaults are used: an in-memory table
cache, launches kept in process and the admin server on :9090.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		resolveCmd(&configPath),
		routesCmd(&configPath),
		navigateCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
