package definition

import (
	"context"
	"testing"

	"github.com/c360studio/workbench/directory"
	"github.com/c360studio/workbench/validator"
	"pgregory.net/rapid"
)

// TestLockInvariants drives random operation sequences and checks that every
// saved status change is a legal transition and every locked field carries a
// PASS for its current value.
func TestLockInvariants(t *testing.T) {
	keys := []string{KeySummary, KeyPrimaryGoal, "scope.in_scope"}
	values := []string{"", "alpha", "beta", "vague"}

	rapid.Check(t, func(t *rapid.T) {
		v := &scriptValidator{decide: func(in validator.Input) (*validator.Result, error) {
			if in.Value == "vague" {
				return weakResult(in.FieldKey, "too vague"), nil
			}
			return passResult(in.FieldKey, in.Value), nil
		}}
		var illegal []string
		e := NewEngine(newMemFields(), v, WithClock(fixedClock()),
			WithTransitionObserver(func(_ DocumentType, from, to Status) {
				if !from.CanTransitionTo(to) {
					illegal = append(illegal, string(from)+">"+string(to))
				}
			}))
		ctx := context.Background()

		steps := rapid.IntRange(1, 25).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			actor := rapid.SampledFrom([]directory.Actor{committer, editor}).Draw(t, "actor")
			key := rapid.SampledFrom(keys).Draw(t, "key")
			value := rapid.SampledFrom(values).Draw(t, "value")

			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				_, _ = e.Propose(ctx, pde, actor, key, value)
			case 1:
				_, _ = e.Approve(ctx, pde, actor, key, value)
			case 2:
				_, _ = e.OverrideLock(ctx, pde, actor, key, value)
			case 3:
				_, _ = e.Reopen(ctx, pde, actor, key)
			case 4:
				_, _ = e.Save(ctx, pde, actor, map[string]string{key: value})
			case 5:
				_, _ = e.Run(ctx, pde, actor, map[string]string{key: value}, ModeLoose)
			case 6:
				_, _ = e.Run(ctx, pde, actor, map[string]string{key: value}, ModeControlled)
			}
		}

		if len(illegal) > 0 {
			t.Fatalf("illegal transitions: %v", illegal)
		}
		fields, err := e.Fields(ctx, pde)
		if err != nil {
			t.Fatalf("fields: %v", err)
		}
		for _, f := range fields {
			if !f.Status.IsValid() {
				t.Fatalf("%s has unknown status %q", f.Key, f.Status)
			}
			if !f.IsLocked() {
				continue
			}
			if !f.LastValidation.Passed() {
				t.Fatalf("%s is locked without a PASS: %+v", f.Key, f.LastValidation)
			}
			if f.ValidatedValue != f.Value {
				t.Fatalf("%s is locked with %q but passed %q", f.Key, f.Value, f.ValidatedValue)
			}
			if f.LockedBy != committer.UserID {
				t.Fatalf("%s locked by %q", f.Key, f.LockedBy)
			}
		}
	})
}
