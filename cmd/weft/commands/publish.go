package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/registry"
)

func newPublishCommand() *cobra.Command {
	var (
		timeout        time.Duration
		registryFilter string
	)

	cmd := &cobra.Command{
		Use:   "publish [dir]",
		Short: "Archive a package and push it to its registries",
		Long: `Bundle a package directory and upload the archive to every publish
target named in its pkg.weft manifest. Targets are pushed concurrently; one
rejected upload fails the whole publish.`,
		Example: `  # Publish the current directory with credentials
  weft publish -u alice -p secret

  # Publish a specific package
  weft publish ./mylib -u alice -p secret`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			m, err := registry.LoadManifest(dir)
			if err != nil {
				return err
			}
			if err := filterTargets(m, registryFilter); err != nil {
				return err
			}
			data, err := registry.Archive(dir, m)
			if err != nil {
				return err
			}

			client := registry.NewClient(timeout, log.Logger)
			if err := client.Publish(cmd.Context(), m, data, credentials()); err != nil {
				return err
			}
			fmt.Printf("published %s@%s to %d registr%s\n",
				m.Name, m.Version, len(m.Publish), plural(len(m.Publish), "y", "ies"))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "timeout per registry request")
	cmd.Flags().StringVar(&registryFilter, "registry", "", "publish only to the target whose URL contains this string")

	return cmd
}

func newUnpublishCommand() *cobra.Command {
	var (
		timeout        time.Duration
		registryFilter string
	)

	cmd := &cobra.Command{
		Use:   "unpublish [dir]",
		Short: "Remove a published package from its registries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			m, err := registry.LoadManifest(dir)
			if err != nil {
				return err
			}
			if err := filterTargets(m, registryFilter); err != nil {
				return err
			}

			client := registry.NewClient(timeout, log.Logger)
			if err := client.Unpublish(cmd.Context(), m, credentials()); err != nil {
				return err
			}
			fmt.Printf("unpublished %s@%s\n", m.Name, m.Version)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "timeout per registry request")
	cmd.Flags().StringVar(&registryFilter, "registry", "", "act only on the target whose URL contains this string")

	return cmd
}

// filterTargets narrows the manifest's publish list to targets matching the
// filter, erroring when nothing is left to act on.
func filterTargets(m *registry.Manifest, filter string) error {
	if filter != "" {
		kept := m.Publish[:0]
		for _, target := range m.Publish {
			if strings.Contains(target.Registry, filter) {
				kept = append(kept, target)
			}
		}
		m.Publish = kept
		if len(m.Publish) == 0 {
			return fmt.Errorf("manifest for %s names no publish target matching %q", m.Name, filter)
		}
		return nil
	}
	if len(m.Publish) == 0 {
		return fmt.Errorf("manifest for %s names no publish targets", m.Name)
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
