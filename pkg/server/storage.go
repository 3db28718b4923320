package server

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

const packageFile = "package.zip"

// packagePath maps a registry reference to its archive location under the
// data directory. References with path traversal are rejected.
func (s *Server) packagePath(ref string) (string, bool) {
	if ref == "" || !filepath.IsLocal(filepath.FromSlash(ref)) {
		return "", false
	}
	return filepath.Join(s.cfg.DataDir, "registry", filepath.FromSlash(ref), packageFile), true
}

// handleUpload stores a published package archive.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	ref := r.PathValue("path")

	path, ok := s.packagePath(ref)
	if !ok {
		http.Error(w, "invalid package reference", http.StatusBadRequest)
		return
	}
	if !user.InScope(ref) {
		http.Error(w, "package outside user scope", http.StatusForbidden)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxDocumentBytes+1))
	if err != nil {
		http.Error(w, "failed to read package", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > s.cfg.MaxDocumentBytes {
		http.Error(w, "package too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		http.Error(w, "failed to store package", http.StatusInternalServerError)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		http.Error(w, "failed to store package", http.StatusInternalServerError)
		return
	}

	s.metrics.RegistryOp("publish")
	s.logger.Info().Str("ref", ref).Str("user", user.Username).Int("bytes", len(data)).Msg("Package published")
	w.WriteHeader(http.StatusCreated)
}

// handleDownload streams a stored package archive.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("path")

	path, ok := s.packagePath(ref)
	if !ok {
		http.Error(w, "invalid package reference", http.StatusBadRequest)
		return
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "package not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to read package", http.StatusInternalServerError)
		return
	}

	s.metrics.RegistryOp("download")
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(data)
}

// handleUnpublish removes a stored package.
func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	ref := r.PathValue("path")

	path, ok := s.packagePath(ref)
	if !ok {
		http.Error(w, "invalid package reference", http.StatusBadRequest)
		return
	}
	if !user.InScope(ref) {
		http.Error(w, "package outside user scope", http.StatusForbidden)
		return
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "package not found", http.StatusNotFound)
		return
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		http.Error(w, "failed to remove package", http.StatusInternalServerError)
		return
	}

	s.metrics.RegistryOp("unpublish")
	s.logger.Info().Str("ref", ref).Str("user", user.Username).Msg("Package unpublished")
	w.WriteHeader(http.StatusNoContent)
}
