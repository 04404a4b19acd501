package model

import (
	"testing"
	"time"
)

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available initially")
	}
	if r.GetEndpointHealth("qwen") != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("qwen")

	health := r.GetEndpointHealth("qwen")
	if health == nil {
		t.Fatal("expected health info after success")
	}
	if !health.Available || health.FailureCount != 0 || health.LastSuccess.IsZero() {
		t.Errorf("unexpected health after success: %+v", health)
	}
}

func TestCircuitBreaker(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.health.now = func() time.Time { return now }

	r.MarkEndpointFailure("qwen")
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available after 1 failure")
	}

	r.MarkEndpointFailure("qwen")
	if r.IsEndpointAvailable("qwen") {
		t.Error("expected circuit to be open after 2 failures")
	}

	chain := r.GetAvailableFallbackChain(CapabilityValidating)
	if len(chain) != 1 || chain[0] != "claude-haiku" {
		t.Errorf("expected open endpoint to be skipped, got %v", chain)
	}

	now = now.Add(2 * time.Minute)
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected half-open probe after recovery timeout")
	}

	r.MarkEndpointSuccess("qwen")
	if h := r.GetEndpointHealth("qwen"); h.CircuitOpen || h.FailureCount != 0 {
		t.Errorf("expected circuit closed after success, got %+v", h)
	}
}

func TestAvailableFallbackChainAllDown(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("qwen")
	r.MarkEndpointFailure("claude-haiku")

	chain := r.GetAvailableFallbackChain(CapabilityValidating)
	if len(chain) != 2 {
		t.Errorf("expected full chain when all endpoints are down, got %v", chain)
	}

	r.ResetEndpointHealth("qwen")
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected reset endpoint to be available")
	}
}
