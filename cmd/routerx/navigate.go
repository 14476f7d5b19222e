package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rickgao/routerx/route"
	"github.com/rickgao/routerx/router"
)

func navigateCmd(configPath *string) *cobra.Command {
	var (
		params      []string
		requestCode int
		user        string
	)

	cmd := &cobra.Command{
		Use:   "navigate <path>",
		Short: "Navigate to a path once",
		Long: `Build a request for path, run it through the interceptors and
dispatch it. Parameters are passed as a URI query, so only the ones the
route declares are kept, converted to their declared kinds.`,
		Example: `  routerx navigate /user/profile -p id=7 -p name=ada
  routerx navigate /shop/cart --user ada`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := navigationURI(args[0], params)
			if err != nil {
				return err
			}

			return withRouter(cmd.Context(), *configPath, func(a *app) error {
				if user != "" {
					if a.demo == nil {
						return errors.New("--user only applies to the demo tables")
					}
					a.demo.Session.SignIn(user)
				}

				req, err := a.router.BuildURI(cmd.Context(), uri)
				if err != nil {
					return err
				}
				if requestCode > 0 {
					req.ForResult(requestCode)
				}

				out := cmd.OutOrStdout()
				result, err := a.router.Navigate(cmd.Context(), req, printingListener(out))
				if result != nil {
					fmt.Fprintf(out, "result: %T\n", result)
				}
				return err
			})
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parameter as key=value (repeatable)")
	cmd.Flags().IntVar(&requestCode, "for-result", 0, "Launch for a result with this request code")
	cmd.Flags().StringVar(&user, "user", "", "Sign the demo session in as this user first")

	return cmd
}

// navigationURI builds a path-only URI carrying params as its query.
func navigationURI(path string, params []string) (*url.URL, error) {
	uri, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}
	q := uri.Query()
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q must be key=value", p)
		}
		q.Add(key, value)
	}
	uri.RawQuery = q.Encode()
	return uri, nil
}

func printingListener(out io.Writer) router.Listener {
	return router.ListenerFuncs{
		Found: func(req *route.Request) {
			fmt.Fprintf(out, "found:       %s -> %s (%s)\n", req.Path, req.Target, req.Kind)
		},
		Lost: func(req *route.Request) {
			fmt.Fprintf(out, "lost:        %s\n", req.Path)
		},
		Arrived: func(req *route.Request) {
			fmt.Fprintf(out, "arrived:     %s\n", req.Target)
		},
		Interrupted: func(req *route.Request) {
			fmt.Fprintf(out, "interrupted: %s (%s)\n", req.Path, req.InterruptReason)
		},
	}
}
