package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Capability names used by the driver.
const (
	CapabilityFS   = "fs"
	CapabilityHTTP = "http"
)

// knownCapabilities is the set the "all" allow-list entry expands to.
var knownCapabilities = []string{CapabilityFS, CapabilityHTTP}

// Input is the policy evaluation input for one capability request.
type Input struct {
	// Capability is the capability being requested.
	Capability string `json:"capability"`

	// Host is the target host for http requests, when applicable.
	Host string `json:"host,omitempty"`

	// Allowed is the invocation's capability allow-list.
	Allowed map[string]bool `json:"allowed"`
}

// Decision is the outcome of a capability request.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Denials lists the violation messages when the request is denied.
	Denials []string
}

// compiledPolicy pairs a named Rego module with its prepared query.
type compiledPolicy struct {
	name  string
	query rego.PreparedEvalQuery
}

// Engine evaluates capability requests against the built-in allow-list rule
// and any custom policies registered on top of it.
type Engine struct {
	mu       sync.RWMutex
	policies []compiledPolicy
	allowed  map[string]bool
	logger   zerolog.Logger
}

// NewEngine builds a policy engine for one invocation's allow-list. Entries
// are capability names; "all" grants every known capability. The filesystem
// capability is always granted: the CLI's own loader depends on it.
func NewEngine(logger zerolog.Logger, allow []string) (*Engine, error) {
	allowed := map[string]bool{CapabilityFS: true}
	for _, name := range allow {
		if name == "all" {
			for _, cap := range knownCapabilities {
				allowed[cap] = true
			}
			continue
		}
		allowed[name] = true
	}

	e := &Engine{
		allowed: allowed,
		logger:  logger.With().Str("component", "policy").Logger(),
	}
	if err := e.AddPolicy(context.Background(), "builtin-allow-list", builtinAllowListPolicy); err != nil {
		return nil, fmt.Errorf("failed to load built-in policy: %w", err)
	}
	return e, nil
}

// AddPolicy compiles and registers a Rego policy module. Policies contribute
// to a shared deny set: any non-empty deny result blocks the request.
func (e *Engine) AddPolicy(ctx context.Context, name, module string) error {
	r := rego.New(
		rego.Module(name, module),
		rego.Query("data.weft.capability.deny"),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare policy %s: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append(e.policies, compiledPolicy{name: name, query: query})

	e.logger.Debug().Str("policy", name).Msg("Policy compiled")
	return nil
}

// Allow evaluates one capability request.
func (e *Engine) Allow(ctx context.Context, capability, host string) (Decision, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := Input{Capability: capability, Host: host, Allowed: e.allowed}

	var denials []string
	for _, cp := range e.policies {
		results, err := cp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return Decision{}, fmt.Errorf("policy %s evaluation failed: %w", cp.name, err)
		}
		for _, result := range results {
			for _, expr := range result.Expressions {
				denySet, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, d := range denySet {
					denials = append(denials, fmt.Sprintf("%v", d))
				}
			}
		}
	}

	decision := Decision{Allowed: len(denials) == 0, Denials: denials}
	if !decision.Allowed {
		e.logger.Debug().
			Str("capability", capability).
			Str("host", host).
			Strs("denials", denials).
			Msg("Capability request denied")
	}
	return decision, nil
}
