package engine

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/doc"
	"github.com/weftlang/weft/pkg/fetch"
	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/policy"
	"github.com/weftlang/weft/pkg/registry"
)

// Loader turns an invocation source (local file, package directory, or
// remote URI) into a fresh document handle.
type Loader struct {
	registry *format.Registry
	fetcher  fetch.Fetcher
	policy   *policy.Engine
	logger   zerolog.Logger
}

// NewLoader returns a document loader.
func NewLoader(reg *format.Registry, fetcher fetch.Fetcher, pol *policy.Engine, logger zerolog.Logger) *Loader {
	return &Loader{
		registry: reg,
		fetcher:  fetcher,
		policy:   pol,
		logger:   logger.With().Str("component", "loader").Logger(),
	}
}

// IsRemote reports whether a source is a remote URI.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load resolves and decodes one source into a document handle. For local
// files the format is resolved from the override and the file extension
// before any bytes are read, so an unresolvable format never opens the file.
// A directory source is loaded as a package through its manifest.
func (l *Loader) Load(ctx context.Context, source, override string, creds *fetch.Credentials) (*doc.Document, format.ID, error) {
	if IsRemote(source) {
		return l.loadRemote(ctx, source, override, creds)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, "", NewNotFoundError(source, err)
	}
	if info.IsDir() {
		return l.loadPackage(ctx, source, creds)
	}

	id, err := l.registry.Resolve(override, source, "")
	if err != nil {
		return nil, "", NewUnknownFormatError(source, err)
	}
	codec, err := l.registry.Codec(id)
	if err != nil {
		return nil, "", NewUnknownFormatError(source, err)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, "", NewLoadError(string(id), source, err)
	}
	d, err := codec.Decode(source, data)
	if err != nil {
		return nil, "", NewLoadError(string(id), source, err)
	}

	l.logger.Debug().Str("source", source).Str("format", string(id)).Msg("Document loaded")
	return d, id, nil
}

// loadPackage loads a package directory via its manifest's entry document.
func (l *Loader) loadPackage(ctx context.Context, dir string, creds *fetch.Credentials) (*doc.Document, format.ID, error) {
	m, err := registry.LoadManifest(dir)
	if err != nil {
		return nil, "", NewLoadError(string(format.Native), dir, err)
	}
	entry := filepath.Join(dir, m.Entry)
	if _, err := os.Stat(entry); err != nil {
		return nil, "", NewNotFoundError(entry, err)
	}
	l.logger.Debug().Str("package", m.Name).Str("entry", entry).Msg("Loading package entry")
	return l.Load(ctx, entry, "", creds)
}

// loadRemote fetches a remote source after clearing the http capability,
// then resolves the format from the override, the URI path, and the
// response content type.
func (l *Loader) loadRemote(ctx context.Context, rawURL, override string, creds *fetch.Credentials) (*doc.Document, format.ID, error) {
	host := ""
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
		path = u.Path
	}
	decision, err := l.policy.Allow(ctx, policy.CapabilityHTTP, host)
	if err != nil {
		return nil, "", NewFetchError(rawURL, err)
	}
	if !decision.Allowed {
		derr := NewPolicyDeniedError(policy.CapabilityHTTP, decision.Denials)
		derr.Stage = StageLoad
		return nil, "", derr
	}

	body, contentType, err := l.fetcher.Get(ctx, rawURL, creds)
	if err != nil {
		return nil, "", NewFetchError(rawURL, err)
	}

	id, err := l.registry.Resolve(override, path, contentType)
	if err != nil {
		return nil, "", NewUnknownFormatError(rawURL, err)
	}
	codec, err := l.registry.Codec(id)
	if err != nil {
		return nil, "", NewUnknownFormatError(rawURL, err)
	}
	d, err := codec.Decode(rawURL, body)
	if err != nil {
		return nil, "", NewLoadError(string(id), rawURL, err)
	}

	l.logger.Debug().Str("source", rawURL).Str("format", string(id)).Msg("Remote document loaded")
	return d, id, nil
}
