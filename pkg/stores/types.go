package stores

import (
	"strings"
	"time"
)

// Perm is a user permission bitmask.
type Perm int64

const (
	// PermRead allows downloading packages from the registry storage.
	PermRead Perm = 1 << iota

	// PermWrite allows publishing packages.
	PermWrite

	// PermDelete allows unpublishing packages.
	PermDelete

	// PermExec allows executing documents through the run endpoint.
	PermExec

	// PermAdmin allows managing users.
	PermAdmin
)

// PermAll grants every permission.
const PermAll = PermRead | PermWrite | PermDelete | PermExec | PermAdmin

// Has reports whether the mask contains every bit of want.
func (p Perm) Has(want Perm) bool { return p&want == want }

// String renders the mask as a comma-separated permission list.
func (p Perm) String() string {
	names := []struct {
		bit  Perm
		name string
	}{
		{PermRead, "read"},
		{PermWrite, "write"},
		{PermDelete, "delete"},
		{PermExec, "exec"},
		{PermAdmin, "admin"},
	}
	var out []string
	for _, n := range names {
		if p.Has(n.bit) {
			out = append(out, n.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, ",")
}

// ParsePerms parses a comma-separated permission list into a mask. "all"
// grants everything.
func ParsePerms(s string) (Perm, bool) {
	var p Perm
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "all":
			p |= PermAll
		case "read":
			p |= PermRead
		case "write":
			p |= PermWrite
		case "delete":
			p |= PermDelete
		case "exec":
			p |= PermExec
		case "admin":
			p |= PermAdmin
		default:
			return 0, false
		}
	}
	return p, true
}

// User is one runner service account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Perms        Perm      `json:"perms"`
	Scope        string    `json:"scope"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InScope reports whether a registry path falls under the user's scope. An
// empty scope covers everything.
func (u *User) InScope(path string) bool {
	if u.Scope == "" {
		return true
	}
	path = strings.TrimPrefix(path, "/")
	scope := strings.TrimSuffix(strings.TrimPrefix(u.Scope, "/"), "/")
	return path == scope || strings.HasPrefix(path, scope+"/")
}

// RunStatus is the terminal status of a recorded run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded driver invocation.
type Run struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Source     string    `json:"source"`
	EntryPoint string    `json:"entry_point,omitempty"`
	Status     RunStatus `json:"status"`
	Error      *string   `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
