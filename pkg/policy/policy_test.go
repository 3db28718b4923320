package policy

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestEngine_AllowList(t *testing.T) {
	tests := []struct {
		name       string
		allow      []string
		capability string
		wantAllow  bool
	}{
		{name: "http denied by default", allow: nil, capability: CapabilityHTTP, wantAllow: false},
		{name: "http granted explicitly", allow: []string{"http"}, capability: CapabilityHTTP, wantAllow: true},
		{name: "fs always granted", allow: nil, capability: CapabilityFS, wantAllow: true},
		{name: "all expands to every capability", allow: []string{"all"}, capability: CapabilityHTTP, wantAllow: true},
		{name: "unknown capability denied", allow: []string{"http"}, capability: "exec", wantAllow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(zerolog.Nop(), tt.allow)
			if err != nil {
				t.Fatalf("failed to build engine: %v", err)
			}
			dec, err := e.Allow(t.Context(), tt.capability, "")
			if err != nil {
				t.Fatalf("evaluation failed: %v", err)
			}
			if dec.Allowed != tt.wantAllow {
				t.Fatalf("allowed=%v, want %v (denials %v)", dec.Allowed, tt.wantAllow, dec.Denials)
			}
		})
	}
}

func TestEngine_DenialNamesTheFix(t *testing.T) {
	e, err := NewEngine(zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	dec, err := e.Allow(t.Context(), CapabilityHTTP, "api.example.com")
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if dec.Allowed || len(dec.Denials) == 0 {
		t.Fatalf("expected a denial, got %+v", dec)
	}
	if !strings.Contains(dec.Denials[0], "--allow http") {
		t.Fatalf("denial does not name the fix: %q", dec.Denials[0])
	}
}

func TestEngine_CustomPolicyLayersOnTop(t *testing.T) {
	e, err := NewEngine(zerolog.Nop(), []string{"http"})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	const hostPolicy = `package weft.capability

import rego.v1

deny contains msg if {
	input.capability == "http"
	input.host == "blocked.example.com"
	msg := sprintf("host %s is blocked", [input.host])
}
`
	if err := e.AddPolicy(t.Context(), "host-blocklist", hostPolicy); err != nil {
		t.Fatalf("failed to add policy: %v", err)
	}

	dec, err := e.Allow(t.Context(), CapabilityHTTP, "blocked.example.com")
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if dec.Allowed {
		t.Fatal("custom policy did not deny the blocked host")
	}

	dec, err = e.Allow(t.Context(), CapabilityHTTP, "fine.example.com")
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("unrelated host denied: %v", dec.Denials)
	}
}

func TestEngine_BadPolicyRejected(t *testing.T) {
	e, err := NewEngine(zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	if err := e.AddPolicy(t.Context(), "broken", "package weft.capability\n\ndeny ["); err == nil {
		t.Fatal("expected a compile error")
	}
}
