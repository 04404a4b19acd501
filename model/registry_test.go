package model

import (
	"testing"
	"time"
)

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	caps := r.ListCapabilities()
	if len(caps) != 3 || caps[0] != CapabilityDrafting || caps[2] != CapabilityValidating {
		t.Errorf("unexpected capabilities %v", caps)
	}
	for _, name := range r.ListEndpoints() {
		if r.GetEndpoint(name) == nil {
			t.Errorf("endpoint %q listed but not configured", name)
		}
	}
	for _, cap := range caps {
		for _, name := range r.GetFallbackChain(cap) {
			if r.GetEndpoint(name) == nil {
				t.Errorf("%s chain names unknown endpoint %q", cap, name)
			}
		}
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		capability Capability
		expected   string
	}{
		{CapabilityValidating, "qwen"},
		{CapabilityDrafting, "qwen"},
		{CapabilityFast, "llama3.2"},
		{Capability("unknown"), "qwen"},
	}

	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			if got := r.Resolve(tt.capability); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.capability, got, tt.expected)
			}
		})
	}
}

func TestRegistryGetFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.GetFallbackChain(CapabilityValidating)
	if len(chain) != 2 || chain[0] != "qwen" || chain[1] != "claude-haiku" {
		t.Errorf("unexpected chain %v", chain)
	}

	chain = r.GetFallbackChain(Capability("unknown"))
	if len(chain) != 1 || chain[0] != "qwen" {
		t.Errorf("unknown capability should fall back to default, got %v", chain)
	}
}

func TestRegistryStatus(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	r.MarkEndpointFailure("qwen")

	st := r.Status()
	if st.Default != "qwen" {
		t.Errorf("default = %q", st.Default)
	}
	if len(st.Capabilities) != 3 || len(st.Endpoints) != 4 {
		t.Fatalf("unexpected status sizes: %d capabilities, %d endpoints", len(st.Capabilities), len(st.Endpoints))
	}

	var validating CapabilityStatus
	for _, cs := range st.Capabilities {
		if cs.Capability == CapabilityValidating {
			validating = cs
		}
	}
	if len(validating.Chain) != 2 || len(validating.Available) != 1 || validating.Available[0] != "claude-haiku" {
		t.Errorf("validating status %+v, want qwen skipped", validating)
	}
	if validating.Description == "" {
		t.Error("expected the capability description")
	}

	for _, ep := range st.Endpoints {
		switch ep.Name {
		case "qwen":
			if ep.Available || ep.Health == nil || !ep.Health.CircuitOpen {
				t.Errorf("qwen status %+v, want open circuit", ep)
			}
		case "claude-haiku":
			if !ep.Available || ep.Health != nil {
				t.Errorf("claude-haiku status %+v, want untouched", ep)
			}
		}
	}
}
