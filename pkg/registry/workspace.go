package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VendorPath returns the directory a package reference vendors into within a
// workspace.
func VendorPath(workspace, ref string) string {
	return filepath.Join(workspace, VendorDir, ref)
}

// Remove deletes vendored packages matching ref from the workspace. A bare
// name removes every vendored version of the package; name@version removes
// that version only. Returns the removed directories.
func Remove(workspace, ref string) ([]string, error) {
	vendor := filepath.Join(workspace, VendorDir)
	entries, err := os.ReadDir(vendor)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workspace has no vendored packages")
		}
		return nil, fmt.Errorf("failed to read vendor directory: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		base, _, _ := strings.Cut(name, "@")
		if name != ref && base != ref {
			continue
		}
		path := filepath.Join(vendor, name)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed = append(removed, path)
	}

	if len(removed) == 0 {
		return nil, fmt.Errorf("no vendored package matches %q", ref)
	}
	return removed, nil
}
