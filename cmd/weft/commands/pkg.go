package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/registry"
)

func newPkgCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pkg [dir]",
		Short: "Archive a package directory",
		Long: `Bundle a package directory into a zip archive ready for publishing.

The directory must carry a pkg.weft manifest naming the package and its
version. Include and exclude patterns in the manifest select the files;
vendored packages under __weft__ are always skipped.`,
		Example: `  # Archive the current directory
  weft pkg

  # Archive a specific package to a chosen path
  weft pkg ./mylib -o mylib.zip`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			m, err := registry.LoadManifest(dir)
			if err != nil {
				return err
			}
			data, err := registry.Archive(dir, m)
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("%s@%s.zip", m.Name, m.Version)
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}
			fmt.Printf("packaged %s@%s (%d bytes) to %s\n", m.Name, m.Version, len(data), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default <name>@<version>.zip)")

	return cmd
}
