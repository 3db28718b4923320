package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weftlang/weft/pkg/fetch"
)

// Client talks to weft registries: publishing, unpublishing, and downloading
// package archives.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// NewClient returns a registry client with the given per-request timeout.
func NewClient(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Publish uploads the archive to every publish target in the manifest. The
// targets upload concurrently; the first failure cancels the rest.
func (c *Client) Publish(ctx context.Context, m *Manifest, archive []byte, creds *fetch.Credentials) error {
	if len(m.Publish) == 0 {
		return fmt.Errorf("manifest of %s declares no publish targets", m.Name)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, target := range m.Publish {
		g.Go(func() error {
			u := packageURL(target.Registry, m.RegistryPath(target))
			req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(archive))
			if err != nil {
				return fmt.Errorf("failed to build publish request for %s: %w", u, err)
			}
			req.Header.Set("Content-Type", "application/zip")
			setAuth(req, creds)

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("failed to publish to %s: %w", u, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return fmt.Errorf("registry %s rejected publish with status %d", target.Registry, resp.StatusCode)
			}

			c.logger.Info().Str("registry", target.Registry).Str("package", m.RegistryPath(target)).Msg("Package published")
			return nil
		})
	}
	return g.Wait()
}

// Unpublish removes the package from every publish target in the manifest.
func (c *Client) Unpublish(ctx context.Context, m *Manifest, creds *fetch.Credentials) error {
	if len(m.Publish) == 0 {
		return fmt.Errorf("manifest of %s declares no publish targets", m.Name)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, target := range m.Publish {
		g.Go(func() error {
			u := packageURL(target.Registry, m.RegistryPath(target))
			req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
			if err != nil {
				return fmt.Errorf("failed to build unpublish request for %s: %w", u, err)
			}
			setAuth(req, creds)

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("failed to unpublish from %s: %w", u, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return fmt.Errorf("registry %s rejected unpublish with status %d", target.Registry, resp.StatusCode)
			}

			c.logger.Info().Str("registry", target.Registry).Str("package", m.RegistryPath(target)).Msg("Package unpublished")
			return nil
		})
	}
	return g.Wait()
}

// Download retrieves a package archive from a registry.
func (c *Client) Download(ctx context.Context, registryURL, ref string, creds *fetch.Credentials) ([]byte, error) {
	u := packageURL(registryURL, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request for %s: %w", u, err)
	}
	setAuth(req, creds)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("package %s not found on %s", ref, registryURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("registry %s rejected download with status %d", registryURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Add downloads a package and vendors it into the workspace's vendor
// directory under the package reference's name.
func (c *Client) Add(ctx context.Context, registryURL, ref, workspace string, creds *fetch.Credentials) (string, error) {
	archive, err := c.Download(ctx, registryURL, ref, creds)
	if err != nil {
		return "", err
	}
	dest := VendorPath(workspace, ref)
	if err := Extract(archive, dest); err != nil {
		return "", fmt.Errorf("failed to vendor %s: %w", ref, err)
	}

	c.logger.Info().Str("registry", registryURL).Str("package", ref).Str("path", dest).Msg("Package added")
	return dest, nil
}

// packageURL joins a registry base URL with a package path. Refs may span
// multiple path segments (team/examples), so only the base is normalized.
func packageURL(base, ref string) string {
	return strings.TrimSuffix(base, "/") + "/registry/" + strings.TrimPrefix(ref, "/")
}

func setAuth(req *http.Request, creds *fetch.Credentials) {
	if creds != nil {
		req.SetBasicAuth(creds.Username, creds.Password)
	}
}
