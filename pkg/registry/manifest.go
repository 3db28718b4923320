package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/weftlang/weft/pkg/doc"
)

// ManifestFile is the manifest's file name at a package root.
const ManifestFile = "pkg.weft"

// DefaultEntry is the package entry document when the manifest names none.
const DefaultEntry = "root.weft"

// VendorDir is the directory packages are vendored into inside a workspace.
const VendorDir = "__weft__"

// PublishTarget is one registry destination for a package.
type PublishTarget struct {
	// Registry is the registry base URL.
	Registry string `json:"registry" validate:"required,url"`

	// Path overrides the package's registry path; defaults to name@version.
	Path string `json:"path,omitempty"`
}

// Manifest describes a weft package. It lives in pkg.weft at the package
// root, written in the native document format.
type Manifest struct {
	// Name is the package name.
	Name string `json:"name" validate:"required"`

	// Version is the package version string.
	Version string `json:"version" validate:"required"`

	// Entry is the document executed when the package directory itself is
	// the invocation source. Defaults to root.weft.
	Entry string `json:"entry,omitempty"`

	// Include lists glob patterns of files to package. Empty means every
	// file under the package root.
	Include []string `json:"include,omitempty"`

	// Exclude lists glob patterns removed from the include set.
	Exclude []string `json:"exclude,omitempty"`

	// Publish lists the registries the package publishes to.
	Publish []PublishTarget `json:"publish,omitempty"`
}

var manifestValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadManifest reads and validates the manifest of the package rooted at
// dir.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package manifest %s: %w", path, err)
	}
	return ParseManifest(path, data)
}

// ParseManifest decodes a manifest from native document bytes.
func ParseManifest(name string, data []byte) (*Manifest, error) {
	d, err := doc.ParseNative(name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse package manifest: %w", err)
	}

	m := &Manifest{}
	m.Name, _ = lookupString(d, "name")
	m.Version, _ = lookupString(d, "version")
	m.Entry, _ = lookupString(d, "entry")
	m.Include = lookupStrings(d, "include")
	m.Exclude = lookupStrings(d, "exclude")

	if targets, ok := d.Lookup("publish"); ok {
		list, ok := targets.([]any)
		if !ok {
			return nil, fmt.Errorf("manifest publish must be a list of targets")
		}
		for i, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("manifest publish[%d] must be a target", i)
			}
			target := PublishTarget{}
			target.Registry, _ = entry["registry"].(string)
			target.Path, _ = entry["path"].(string)
			m.Publish = append(m.Publish, target)
		}
	}

	if m.Entry == "" {
		m.Entry = DefaultEntry
	}

	if err := manifestValidator.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid package manifest: %w", err)
	}
	return m, nil
}

// RegistryPath returns the path a publish target stores the package under.
func (m *Manifest) RegistryPath(target PublishTarget) string {
	if target.Path != "" {
		return target.Path
	}
	return fmt.Sprintf("%s@%s", m.Name, m.Version)
}

func lookupString(d *doc.Document, path string) (string, bool) {
	v, ok := d.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func lookupStrings(d *doc.Document, path string) []string {
	v, ok := d.Lookup(path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
