package definition

import "testing"

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		// From draft
		{StatusDraft, StatusProposed, true},
		{StatusDraft, StatusLocked, true},
		{StatusDraft, StatusDraft, false},

		// From proposed
		{StatusProposed, StatusLocked, true},
		{StatusProposed, StatusDraft, true},
		{StatusProposed, StatusProposed, false},

		// From locked
		{StatusLocked, StatusDraft, true},
		{StatusLocked, StatusProposed, false},
		{StatusLocked, StatusLocked, false},

		{Status("UNKNOWN"), StatusDraft, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "_to_" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("Status(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range Statuses {
		if !s.IsValid() {
			t.Errorf("Status(%q).IsValid() = false", s)
		}
	}
	for _, s := range []Status{"", "LOCKED", "draft"} {
		if s.IsValid() {
			t.Errorf("Status(%q).IsValid() = true", s)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" controlled "); err != nil || m != ModeControlled {
		t.Errorf("ParseMode(controlled) = %q, %v", m, err)
	}
	if m, err := ParseMode("loose"); err != nil || m != ModeLoose {
		t.Errorf("ParseMode(loose) = %q, %v", m, err)
	}
	if _, err := ParseMode("strict"); err == nil {
		t.Error("ParseMode(strict) should fail")
	}
}

func TestDocumentRef(t *testing.T) {
	tests := []struct {
		ref     DocumentRef
		id      string
		wantErr bool
	}{
		{DocumentRef{Type: TypePDE, ProjectID: "p1"}, "PDE/p1", false},
		{DocumentRef{Type: TypeCDE, ProjectID: "p1", Scope: "c1"}, "CDE/p1/c1", false},
		{DocumentRef{Type: TypePPDE, ProjectID: "p1"}, "PPDE/p1", true},
		{DocumentRef{Type: TypeCDE, ProjectID: "p1", Scope: "a/b"}, "CDE/p1/a/b", true},
		{DocumentRef{Type: "XYZ", ProjectID: "p1"}, "XYZ/p1", true},
		{DocumentRef{Type: TypePDE}, "PDE/", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := tt.ref.ID(); got != tt.id {
				t.Errorf("ID() = %q, want %q", got, tt.id)
			}
			if err := tt.ref.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshot(t *testing.T) {
	spec := &DocumentSpec{Fields: []FieldSpec{
		{Key: "a", Required: true},
		{Key: "b", Required: true},
		{Key: "c"},
		{Key: "d", Required: true},
	}}
	fields := []*Field{
		{Key: "a", Value: " A ", Status: StatusLocked},
		{Key: "b", Value: "B", Status: StatusProposed},
		{Key: "c", Value: "C", Status: StatusLocked},
		{Key: "d", Value: "  ", Status: StatusLocked},
	}
	locked, missing := Snapshot(spec, fields)
	if len(locked) != 2 || locked["a"] != "A" || locked["c"] != "C" {
		t.Errorf("locked = %v", locked)
	}
	if len(missing) != 2 || missing[0] != "b" || missing[1] != "d" {
		t.Errorf("missing = %v, want [b d]", missing)
	}
}

func TestEnumRule(t *testing.T) {
	rule := EnumRule("Colour", []string{"RED", "BLUE"})
	if res := rule("k", " red "); !res.Passed() || res.SuggestedRevision != "RED" {
		t.Errorf("red = %+v", res)
	}
	if res := rule("k", ""); res.Passed() || res.FirstIssue() != "Colour is required." {
		t.Errorf("blank = %+v", res)
	}
	if res := rule("k", "green"); res.FirstIssue() != "Colour must be one of: BLUE, RED." {
		t.Errorf("green = %+v", res)
	}
}
