package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/weftlang/weft/pkg/engine"
	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/stores"
)

// RunResponse is the run endpoint's JSON body.
type RunResponse struct {
	InvocationID string `json:"invocation_id,omitempty"`
	State        string `json:"state"`
	EntryPoint   string `json:"entry_point,omitempty"`
	Output       string `json:"output,omitempty"`
	ErrorOutput  string `json:"error_output,omitempty"`
	Error        string `json:"error,omitempty"`
	Code         string `json:"code,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

// handleRun executes the document in the request body and replies with the
// committed output. Query parameters mirror the CLI's run flags: name,
// format, entry, marker, allow (comma-separated), and partial.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxDocumentBytes+1))
	if err != nil {
		http.Error(w, "failed to read document", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.cfg.MaxDocumentBytes {
		http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
		return
	}

	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		name = "document"
	}

	opts := engine.NewOptions(name)
	opts.Format = q.Get("format")
	opts.EntryPoint = q.Get("entry")
	if marker := q.Get("marker"); marker != "" {
		opts.Marker = marker
	}
	if allow := q.Get("allow"); allow != "" {
		opts.Allow = strings.Split(allow, ",")
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	s.metrics.InvocationStarted()
	res := s.pipeline.RunData(ctx, name, body, r.Header.Get("Content-Type"), opts)
	s.metrics.InvocationFinished(string(res.State), res.Duration)

	var out, errOut bytes.Buffer
	committer := engine.NewCommitter(&out, &errOut, s.pipeline.Registry())
	if vf := q.Get("out"); vf != "" {
		committer.SetValueFormat(format.ID(vf))
	}
	if partial, _ := strconv.ParseBool(q.Get("partial")); partial {
		committer.SetPartialOnFailure(true)
	}
	if err := committer.Commit(res); err != nil {
		s.logger.Error().Err(err).Msg("Failed to commit run output")
		http.Error(w, "failed to commit output", http.StatusInternalServerError)
		return
	}

	s.recordRun(r.Context(), user, name, res)

	resp := RunResponse{
		InvocationID: res.InvocationID,
		State:        string(res.State),
		EntryPoint:   res.EntryPoint,
		Output:       out.String(),
		ErrorOutput:  errOut.String(),
		DurationMS:   res.Duration.Milliseconds(),
	}
	status := http.StatusOK
	if res.State == engine.StateFailed {
		status = http.StatusUnprocessableEntity
		resp.Error = res.Err.Error()
		resp.Code = string(res.Err.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode run response")
	}
}

// recordRun appends the invocation to the run history.
func (s *Server) recordRun(ctx context.Context, user *stores.User, source string, res *engine.Result) {
	run := &stores.Run{
		ID:         res.InvocationID,
		Username:   user.Username,
		Source:     source,
		EntryPoint: res.EntryPoint,
		Status:     stores.RunStatusCompleted,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.State == engine.StateFailed {
		run.Status = stores.RunStatusFailed
		msg := res.Err.Error()
		run.Error = &msg
	}
	if err := s.store.RecordRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record run")
	}
}

// handleListRuns returns recent run history.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode run list")
	}
}
