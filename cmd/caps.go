// cmd/caps.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newCapsCmd() *cobra.Command {
	var (
		kindName string
		remote   bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "caps",
		Short: "Prints the capability set a session would be launched with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			if kindName == "" {
				kindName = a.cfg.Browser.Kind
			}
			kind, err := browser.ParseKind(kindName)
			if err != nil {
				return err
			}
			mode := browser.Local
			if remote || a.cfg.Browser.RemoteURL != "" {
				mode = browser.Remote
			}

			set, err := capabilities.Build(kind, mode, capabilities.EnvironmentFromConfig(a.cfg))
			if err != nil {
				return err
			}
			return writeCaps(cmd.OutOrStdout(), set, format)
		},
	}

	cmd.Flags().StringVarP(&kindName, "browser", "b", "", "browser kind (defaults to browser.kind)")
	cmd.Flags().BoolVar(&remote, "remote", false, "build the remote variant")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func writeCaps(w io.Writer, set capabilities.Set, format string) error {
	view := set.View()
	switch strings.ToLower(format) {
	case "json":
		out, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode capabilities: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return fmt.Errorf("failed to encode capabilities: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
