package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rickgao/routerx/route"
)

// withRouter builds and starts an app for a one-shot command.
func withRouter(ctx context.Context, configPath string, fn func(*app) error) error {
	a, err := newApp(ctx, configPath, route.DefaultCatalog, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.router.Start(ctx); err != nil {
		return err
	}
	return fn(a)
}

func resolveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show the route a path leads to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRouter(cmd.Context(), *configPath, func(a *app) error {
				meta, err := a.router.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printMeta(cmd.OutOrStdout(), meta)
				return nil
			})
		},
	}
}

func printMeta(out io.Writer, m route.Meta) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "path:\t%s\n", m.Path)
	fmt.Fprintf(tw, "group:\t%s\n", m.Group)
	fmt.Fprintf(tw, "kind:\t%s\n", m.Kind)
	fmt.Fprintf(tw, "target:\t%s\n", m.Target)
	fmt.Fprintf(tw, "priority:\t%d\n", m.Priority)
	fmt.Fprintf(tw, "extras:\t%d\n", m.Extras)
	fmt.Fprintf(tw, "params:\t%s\n", formatParams(m.Params))
	tw.Flush()
}

func formatParams(params map[string]route.DataKind) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(params))
	for name, kind := range params {
		parts = append(parts, name+"="+kind.String())
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}

func routesCmd(configPath *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List routes",
		Long: `List the routes materialized so far. Groups load lazily, so a
fresh router lists nothing until --all loads every group.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRouter(cmd.Context(), *configPath, func(a *app) error {
				if all {
					if err := a.router.LoadAll(cmd.Context()); err != nil {
						return err
					}
				}
				printRoutes(cmd.OutOrStdout(), a.router.Routes(), a.router.PendingGroups())
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Load every group before listing")

	return cmd
}

func printRoutes(out io.Writer, metas []route.Meta, pending []string) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tGROUP\tKIND\tTARGET\tPRIORITY\tPARAMS")
	for _, m := range metas {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", m.Path, m.Group, m.Kind, m.Target, m.Priority, formatParams(m.Params))
	}
	tw.Flush()

	if len(pending) > 0 {
		fmt.Fprintf(out, "\nnot loaded: %s\n", strings.Join(pending, ", "))
	}
}
