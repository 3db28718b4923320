package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/policy"
)

func newTestLoader(t *testing.T, fetcher *fakeFetcher, allow []string) *Loader {
	t.Helper()
	pol, err := policy.NewEngine(zerolog.Nop(), allow)
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}
	return NewLoader(format.NewRegistry(), fetcher, pol, zerolog.Nop())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoader_LoadNativeFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.weft", `
greeting: "hello"
count:    3
`)

	l := newTestLoader(t, newFakeFetcher(), nil)
	d, id, err := l.Load(context.Background(), path, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != format.Native {
		t.Errorf("expected format %s, got %s", format.Native, id)
	}
	if v, ok := d.Lookup("greeting"); !ok || v != "hello" {
		t.Errorf("expected greeting 'hello', got %v", v)
	}
}

func TestLoader_MissingSourceIsNotFound(t *testing.T) {
	l := newTestLoader(t, newFakeFetcher(), nil)
	_, _, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "absent.weft"), "", nil)

	var derr *DriverError
	if !errors.As(err, &derr) || derr.Code != CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoader_UnknownExtensionFailsBeforeReading(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.xyz", "opaque bytes")

	l := newTestLoader(t, newFakeFetcher(), nil)
	_, _, err := l.Load(context.Background(), path, "", nil)

	var derr *DriverError
	if !errors.As(err, &derr) || derr.Code != CodeUnknownFormat {
		t.Fatalf("expected unknown format error, got %v", err)
	}
	if derr.Stage != StageResolve {
		t.Errorf("expected resolve stage, got %s", derr.Stage)
	}
}

func TestLoader_OverrideBeatsExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.xyz", `{"key": "value"}`)

	l := newTestLoader(t, newFakeFetcher(), nil)
	d, id, err := l.Load(context.Background(), path, "json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != format.JSON {
		t.Errorf("expected format %s, got %s", format.JSON, id)
	}
	if v, ok := d.Lookup("key"); !ok || v != "value" {
		t.Errorf("expected key 'value', got %v", v)
	}
}

func TestLoader_PackageDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pkg.weft", `
name:    "demo"
version: "0.1.0"
entry:   "main.weft"
`)
	writeFile(t, dir, "main.weft", `
label: "from package"
`)

	l := newTestLoader(t, newFakeFetcher(), nil)
	d, id, err := l.Load(context.Background(), dir, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != format.Native {
		t.Errorf("expected format %s, got %s", format.Native, id)
	}
	if v, ok := d.Lookup("label"); !ok || v != "from package" {
		t.Errorf("expected label 'from package', got %v", v)
	}
}

func TestLoader_PackageDirectoryWithoutManifest(t *testing.T) {
	l := newTestLoader(t, newFakeFetcher(), nil)
	_, _, err := l.Load(context.Background(), t.TempDir(), "", nil)

	var derr *DriverError
	if !errors.As(err, &derr) || derr.Code != CodeLoadError {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestLoader_RemoteSource(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.respond("https://registry.test/doc", []byte(`{"region": "eu-west-1"}`), "application/json")

	l := newTestLoader(t, fetcher, []string{"http"})
	d, id, err := l.Load(context.Background(), "https://registry.test/doc", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != format.JSON {
		t.Errorf("expected format %s, got %s", format.JSON, id)
	}
	if v, ok := d.Lookup("region"); !ok || v != "eu-west-1" {
		t.Errorf("expected region 'eu-west-1', got %v", v)
	}
}

func TestLoader_RemoteSourceNeedsHTTPCapability(t *testing.T) {
	l := newTestLoader(t, newFakeFetcher(), nil)
	_, _, err := l.Load(context.Background(), "https://registry.test/doc", "", nil)

	var derr *DriverError
	if !errors.As(err, &derr) || derr.Code != CodePolicyDenied {
		t.Fatalf("expected policy denial, got %v", err)
	}
}

func TestLoader_RemoteFetchFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail("https://registry.test/doc", errors.New("connection refused"))

	l := newTestLoader(t, fetcher, []string{"http"})
	_, _, err := l.Load(context.Background(), "https://registry.test/doc", "", nil)

	var derr *DriverError
	if !errors.As(err, &derr) || derr.Code != CodeFetchError {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestLoader_DecodeFailureNamesFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.json", `{"unterminated`)

	l := newTestLoader(t, newFakeFetcher(), nil)
	_, _, err := l.Load(context.Background(), path, "", nil)

	var derr *DriverError
	if !errors.As(err, &derr) || derr.Code != CodeLoadError {
		t.Fatalf("expected load error, got %v", err)
	}
	if derr.Details["format"] != "json" {
		t.Errorf("expected format detail json, got %v", derr.Details["format"])
	}
}
