package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/registry"
)

func newAddCommand() *cobra.Command {
	var (
		workspace string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "add <registry> <ref>",
		Short: "Vendor a package from a registry",
		Long: `Download a package archive from a registry and extract it into the
workspace's vendor directory (__weft__). The reference is the package's
registry path, usually name@version.`,
		Example: `  # Vendor a package into the current workspace
  weft add https://registry.example.com mylib@1.0.0

  # Vendor into another workspace
  weft add https://registry.example.com team/mylib@2.1.0 --dir ./project`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registryURL, ref := args[0], args[1]

			client := registry.NewClient(timeout, log.Logger)
			dest, err := client.Add(cmd.Context(), registryURL, ref, workspace, credentials())
			if err != nil {
				return err
			}
			fmt.Printf("added %s to %s\n", ref, dest)
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "dir", ".", "workspace directory")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "timeout per registry request")

	return cmd
}

func newRemoveCommand() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "remove <ref>",
		Short: "Drop a vendored package from the workspace",
		Long: `Remove a vendored package from the workspace's vendor directory. A bare
name drops every vendored version of that package.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			removed, err := registry.Remove(workspace, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("removed %s\n", strings.Join(removed, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "dir", ".", "workspace directory")

	return cmd
}
