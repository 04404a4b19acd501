package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/workbench/artefact"
	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
	"github.com/c360studio/workbench/instructions"
	"github.com/c360studio/workbench/llm"
	"github.com/c360studio/workbench/llm/testutil"
	"github.com/c360studio/workbench/metrics"
	"github.com/c360studio/workbench/model"
	"github.com/c360studio/workbench/resolution"
	"github.com/c360studio/workbench/storage"
	fieldvalidator "github.com/c360studio/workbench/validator"
)

const (
	passJSON  = `{"verdict":"PASS","issues":[],"confidence":"HIGH"}`
	weakJSON  = `{"verdict":"WEAK","issues":["too vague"],"questions":["What exactly?"],"confidence":"MEDIUM"}`
	draftJSON = `{"hypotheses":{"fields":{"intent.primary_goal":"Ship the beta","bogus.key":"x"}}}`
)

// respond passes everything except values mentioning "vague" (WEAK) or
// "explode" (transport failure), and answers seeds with a draft.
func respond(userText string, _ []string) (llm.Panes, error) {
	switch {
	case strings.HasPrefix(userText, "Seed intent:"):
		return llm.Panes{Output: draftJSON}, nil
	case strings.Contains(userText, "explode"):
		return llm.Panes{}, llm.NewTransientError(errors.New("upstream 503"))
	case strings.Contains(userText, "vague"):
		return llm.Panes{Output: weakJSON}, nil
	}
	return llm.Panes{Output: passJSON}, nil
}

type fixture struct {
	srv    *httptest.Server
	store  *storage.MemoryStore
	gen    *testutil.ScriptedGenerator
	models *model.Registry
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for _, id := range []string{"alice", "carol", "dave"} {
		require.NoError(t, store.PutUser(ctx, &directory.User{ID: id, Name: strings.ToUpper(id[:1]) + id[1:]}))
	}
	require.NoError(t, store.PutProject(ctx, &directory.Project{
		ID: "p1", Name: "Apollo", Owner: "alice", Kind: directory.KindStandard,
		Governance: "Decisions are recorded.",
		Members: []directory.Membership{
			{UserID: "carol", Role: directory.RoleContributor},
			{UserID: "dave", Role: directory.RoleObserver},
		},
	}))

	gen := &testutil.ScriptedGenerator{Respond: respond}
	engine := definition.NewEngine(store, fieldvalidator.New(gen))
	mirror, err := artefact.NewMirror(t.TempDir(), nil)
	require.NoError(t, err)
	registry := axis.NewRegistry(axis.DefaultCatalog())

	models := model.NewDefaultRegistry()
	models.SetHealthConfig(model.HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	server := NewServer(Deps{
		Directory: store,
		Engine:    engine,
		Artefacts: artefact.NewService(engine, store, store, mirror),
		Drafter:   fieldvalidator.NewDrafter(gen),
		Resolver:  resolution.NewResolver(store, registry),
		Registry:  registry,
		Models:    models,
	}, opts...)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, gen: gen, models: models}
}

// call sends body as JSON and decodes the response into out when non-nil.
func (f *fixture) call(t *testing.T, method, path, user string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(HeaderUser, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "decode %s %s", method, path)
	}
	return resp.StatusCode
}

const pdePath = "/api/v1/projects/p1/documents/pde"

func TestHealthzAndCatalog(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/healthz", "", nil, nil))

	var catalog struct {
		Axes []AxisCatalog `json:"axes"`
	}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/catalog", "", nil, &catalog))
	require.Len(t, catalog.Axes, len(axis.All))
	for _, a := range catalog.Axes {
		assert.NotEmpty(t, a.Presets, "axis %s", a.Axis)
		assert.NotEmpty(t, a.Default, "axis %s", a.Axis)
	}
}

func TestMissingUserHeader(t *testing.T) {
	f := newFixture(t)
	var resp ErrorResponse
	status := f.call(t, http.MethodPost, pdePath+"/propose_lock", "", FieldRequest{Key: definition.KeyPrimaryGoal, Value: "x"}, &resp)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, resp.Error, HeaderUser)
}

func TestProposeApproveFlow(t *testing.T) {
	f := newFixture(t)

	var out definition.Outcome
	status := f.call(t, http.MethodPost, pdePath+"/propose_lock", "carol",
		FieldRequest{Key: definition.KeyPrimaryGoal, Value: "Ship v1"}, &out)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, definition.StatusProposed, out.Field.Status)

	out = definition.Outcome{}
	status = f.call(t, http.MethodPost, pdePath+"/approve_lock", "alice",
		FieldRequest{Key: definition.KeyPrimaryGoal}, &out)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, definition.StatusLocked, out.Field.Status)
	assert.Equal(t, "alice", out.Field.LockedBy)

	// Re-approving a locked field is a no-op, not an error.
	out = definition.Outcome{}
	status = f.call(t, http.MethodPost, pdePath+"/approve_lock", "alice",
		FieldRequest{Key: definition.KeyPrimaryGoal}, &out)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, out.NoOp)
	assert.NotEmpty(t, out.Message)

	var doc DocumentResponse
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, pdePath, "dave", nil, &doc))
	assert.Equal(t, 1, doc.State.Counts[definition.StatusLocked])
	assert.Len(t, doc.Spec, doc.State.Total)

	var reopened definition.Outcome
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, pdePath+"/reopen_field", "alice",
		ReopenRequest{Key: definition.KeyPrimaryGoal}, &reopened))
	assert.Equal(t, definition.StatusDraft, reopened.Field.Status)
}

func TestProposeBlocked(t *testing.T) {
	f := newFixture(t)

	var out definition.Outcome
	status := f.call(t, http.MethodPost, pdePath+"/propose_lock", "alice",
		FieldRequest{Key: definition.KeyPrimaryGoal, Value: "something vague"}, &out)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.True(t, out.Blocked)
	assert.Equal(t, "Blocked at: intent.primary_goal (WEAK) - too vague", out.Message)
	assert.Equal(t, []string{"What exactly?"}, out.Validation.Questions)
	assert.Equal(t, definition.StatusDraft, out.Field.Status)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"observer cannot propose", http.MethodPost, pdePath + "/propose_lock", "dave",
			FieldRequest{Key: definition.KeyPrimaryGoal, Value: "x"}, http.StatusForbidden},
		{"editor cannot override", http.MethodPost, pdePath + "/override_lock", "carol",
			FieldRequest{Key: definition.KeyPrimaryGoal, Value: "x"}, http.StatusForbidden},
		{"approve without proposal", http.MethodPost, pdePath + "/approve_lock", "alice",
			FieldRequest{Key: definition.KeyPrimaryGoal}, http.StatusConflict},
		{"unknown field", http.MethodPost, pdePath + "/override_lock", "alice",
			FieldRequest{Key: "nope.nothing", Value: "x"}, http.StatusBadRequest},
		{"missing key", http.MethodPost, pdePath + "/propose_lock", "alice",
			FieldRequest{Value: "x"}, http.StatusBadRequest},
		{"unknown document type", http.MethodGet, "/api/v1/projects/p1/documents/xyz", "alice",
			nil, http.StatusBadRequest},
		{"chat document without scope", http.MethodGet, "/api/v1/projects/p1/documents/cde", "alice",
			nil, http.StatusBadRequest},
		{"unknown project", http.MethodGet, "/api/v1/projects/p9/documents/pde", "alice",
			nil, http.StatusNotFound},
		{"bad run mode", http.MethodPost, pdePath + "/run", "alice",
			RunRequest{Mode: "FAST"}, http.StatusBadRequest},
		{"unknown artefact", http.MethodPost, "/api/v1/projects/p1/artefacts/a-1/accept", "alice",
			nil, http.StatusNotFound},
		{"bad artefact kind", http.MethodGet, "/api/v1/projects/p1/artefacts?kind=ZZZ", "alice",
			nil, http.StatusBadRequest},
		{"empty save", http.MethodPost, pdePath + "/save", "alice",
			SaveRequest{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			status := f.call(t, tt.method, tt.path, tt.user, tt.body, &resp)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestTransportErrorLeavesFieldUntouched(t *testing.T) {
	f := newFixture(t)

	var resp ErrorResponse
	status := f.call(t, http.MethodPost, pdePath+"/propose_lock", "alice",
		FieldRequest{Key: definition.KeyPrimaryGoal, Value: "please explode"}, &resp)
	assert.Equal(t, http.StatusBadGateway, status)

	fields, err := f.store.Fields(context.Background(), "PDE/p1")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestSaveAndRun(t *testing.T) {
	f := newFixture(t)

	var saved struct {
		Changed []*definition.Field `json:"changed"`
	}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, pdePath+"/save", "carol",
		SaveRequest{Values: map[string]string{definition.KeyPrimaryGoal: "Ship v1"}}, &saved))
	require.Len(t, saved.Changed, 1)

	var loose definition.RunResult
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, pdePath+"/run", "carol",
		RunRequest{Mode: "loose", Inputs: map[string]string{"scope.in_scope": "The API"}}, &loose))
	assert.True(t, loose.OK)
	assert.Equal(t, []string{"scope.in_scope"}, loose.Stored)

	// Editors may preflight but not run controlled.
	var pre definition.RunResult
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, pdePath+"/validate_lock", "carol",
		RunRequest{}, &pre))
	assert.Equal(t, definition.ModeControlled, pre.Mode)
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPost, pdePath+"/run", "carol",
		RunRequest{Mode: "CONTROLLED"}, nil))

	fields, err := f.store.Fields(context.Background(), "PDE/p1")
	require.NoError(t, err)
	for _, fl := range fields {
		assert.NotEqual(t, definition.StatusLocked, fl.Status, "preflight must not lock %s", fl.Key)
	}
}

func lockChat(t *testing.T, f *fixture, chat string) {
	t.Helper()
	values := map[string]string{
		definition.KeyChatGoal:       "Agree the launch plan",
		definition.KeyChatSuccess:    "A dated plan",
		definition.KeyChatConstraint: "No new hires; budget fixed",
		definition.KeyChatNonGoals:   "Pricing",
	}
	for k, v := range values {
		status := f.call(t, http.MethodPost, "/api/v1/projects/p1/documents/cde/override_lock?scope="+chat, "alice",
			FieldRequest{Key: k, Value: v}, nil)
		require.Equal(t, http.StatusOK, status, k)
	}
}

func TestCommitAndAccept(t *testing.T) {
	f := newFixture(t)
	chatPath := "/api/v1/projects/p1/documents/cde"

	var precondition ErrorResponse
	status := f.call(t, http.MethodPost, chatPath+"/commit?scope=chat-1", "alice", nil, &precondition)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, []string{definition.KeyChatGoal, definition.KeyChatSuccess,
		definition.KeyChatConstraint, definition.KeyChatNonGoals}, precondition.Missing)

	lockChat(t, f, "chat-1")

	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPost, chatPath+"/commit?scope=chat-1", "carol", nil, nil))

	var first, second artefact.Artefact
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, chatPath+"/commit?scope=chat-1", "alice", nil, &first))
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, chatPath+"/commit?scope=chat-1", "alice", nil, &second))
	assert.Equal(t, artefact.KindWKO, first.Kind)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, artefact.StatusDraft, first.Status)

	var list struct {
		Artefacts []*artefact.Artefact `json:"artefacts"`
	}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/projects/p1/artefacts?kind=wko", "dave", nil, &list))
	assert.Len(t, list.Artefacts, 2)

	acceptPath := func(id string) string { return "/api/v1/projects/p1/artefacts/" + id + "/accept" }

	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPost, acceptPath(first.ID), "carol", nil, nil))

	var res artefact.AcceptResult
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, acceptPath(first.ID), "alice", nil, &res))
	assert.Equal(t, artefact.AcceptAccepted, res.Status)

	res = artefact.AcceptResult{}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, acceptPath(first.ID), "alice", nil, &res))
	assert.Equal(t, artefact.AcceptNoop, res.Status)

	res = artefact.AcceptResult{}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, acceptPath(second.ID), "alice", nil, &res))
	assert.Equal(t, first.ID, res.PreviousID)

	var old artefact.Artefact
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/projects/p1/artefacts/"+first.ID, "alice", nil, &old))
	assert.Equal(t, artefact.StatusSuperseded, old.Status)

	// A superseded artefact cannot be accepted again.
	assert.Equal(t, http.StatusConflict, f.call(t, http.MethodPost, acceptPath(first.ID), "alice", nil, nil))
}

func TestDraft(t *testing.T) {
	f := newFixture(t)

	var resp DraftResponse
	status := f.call(t, http.MethodPost, pdePath+"/draft", "carol",
		DraftRequest{Seed: "A launch tracker for the beta", Style: "concise", Save: true}, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]string{definition.KeyPrimaryGoal: "Ship the beta"}, resp.Hypotheses)
	assert.Equal(t, []string{"bogus.key"}, resp.Ignored)
	require.Len(t, resp.Saved, 1)
	assert.Equal(t, definition.StatusDraft, resp.Saved[0].Status)

	calls := f.gen.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[len(calls)-1].UserText, "A launch tracker for the beta")

	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, pdePath+"/draft", "carol",
		DraftRequest{Seed: "x", Style: "verbose"}, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, pdePath+"/draft", "carol",
		DraftRequest{Seed: "x", Constraints: strings.Repeat("c", 401)}, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, pdePath+"/draft", "carol",
		DraftRequest{}, nil))
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPost, pdePath+"/draft", "dave",
		DraftRequest{Seed: "x"}, nil))
}

func TestDirectoryUpserts(t *testing.T) {
	f := newFixture(t)

	var u directory.User
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, "/api/v1/directory/users/bob", "bob",
		UserRequest{Name: "Bob", Email: "bob@example.com"}, &u))
	assert.Equal(t, "bob", u.ID)
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPut, "/api/v1/directory/users/bob", "carol",
		UserRequest{Name: "Not Bob"}, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPut, "/api/v1/directory/users/bob", "bob",
		UserRequest{Name: "Bob", Email: "not-an-email"}, nil))

	var prof directory.Profile
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, "/api/v1/directory/users/bob/profile", "bob",
		SelectionsRequest{Selections: map[string]string{"tone": "Brief"}}, &prof))
	assert.Equal(t, axis.ByName("Brief"), prof.Selections[axis.Tone])
	assert.NotEmpty(t, prof.ID)
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPut, "/api/v1/directory/users/bob/profile", "bob",
		SelectionsRequest{Selections: map[string]string{"colour": "blue"}}, nil))

	var p directory.Project
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPut, "/api/v1/directory/projects/p2", "bob",
		ProjectRequest{Name: "Gemini", Kind: "SANDBOX",
			Members: []MemberRequest{{UserID: "carol", Role: "CONTRIBUTOR"}}}, &p))
	assert.Equal(t, "bob", p.Owner)
	assert.True(t, p.IsSandbox())

	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPut, "/api/v1/directory/projects/p2", "carol",
		ProjectRequest{Name: "Hijacked"}, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPut, "/api/v1/directory/projects/p3", "bob",
		ProjectRequest{Name: "Bad", Members: []MemberRequest{{UserID: "x", Role: "KING"}}}, nil))

	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, "/api/v1/directory/projects/p2", "bob",
		ProjectRequest{Name: "Gemini II", Members: []MemberRequest{{UserID: "carol", Role: "OBSERVER"}}}, &p))
	assert.Equal(t, "Gemini II", p.Name)
	assert.Equal(t, directory.KindStandard, p.Kind)

	var prefs directory.ProjectPrefs
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, "/api/v1/directory/projects/p2/prefs/carol", "carol",
		SelectionsRequest{Selections: map[string]string{"REASONING": "Analytical"}}, &prefs))
	assert.Equal(t, "p2", prefs.ProjectID)
	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPut, "/api/v1/directory/projects/p9/prefs/carol", "carol",
		SelectionsRequest{}, nil))
}

func TestProjectVisibility(t *testing.T) {
	f := newFixture(t)
	lockChat(t, f, "chat-1")
	var a artefact.Artefact
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost,
		"/api/v1/projects/p1/documents/cde/commit?scope=chat-1", "alice", nil, &a))

	reads := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"document", http.MethodGet, pdePath, nil},
		{"artefact list", http.MethodGet, "/api/v1/projects/p1/artefacts", nil},
		{"artefact", http.MethodGet, "/api/v1/projects/p1/artefacts/" + a.ID, nil},
		{"resolve", http.MethodPost, "/api/v1/context/resolve", ContextRequest{ProjectID: "p1"}},
		{"instructions", http.MethodPost, "/api/v1/context/instructions", ContextRequest{ProjectID: "p1", ChatID: "chat-1"}},
	}
	for _, tt := range reads {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			assert.Equal(t, http.StatusNotFound, f.call(t, tt.method, tt.path, "mallory", tt.body, &resp))
			assert.NotContains(t, resp.Error, "Apollo")
			assert.Equal(t, http.StatusOK, f.call(t, tt.method, tt.path, "dave", tt.body, nil))
		})
	}

	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPut, "/api/v1/directory/projects/p1/prefs/mallory", "mallory",
		SelectionsRequest{Selections: map[string]string{"tone": "Brief"}}, nil))
	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPost, pdePath+"/propose_lock", "mallory",
		FieldRequest{Key: definition.KeyPrimaryGoal, Value: "Ship v1"}, nil))
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPost, pdePath+"/propose_lock", "dave",
		FieldRequest{Key: definition.KeyPrimaryGoal, Value: "Ship v1"}, nil))
	assert.Equal(t, http.StatusOK, f.call(t, http.MethodPut, "/api/v1/directory/projects/p1/prefs/dave", "dave",
		SelectionsRequest{Selections: map[string]string{"tone": "Brief"}}, nil))
}

func TestContextResolveAndInstructions(t *testing.T) {
	f := newFixture(t)

	var resolved struct {
		Context struct {
			Values map[string]struct {
				Preset axis.Preset `json:"preset"`
			} `json:"values"`
		} `json:"context"`
		Ignored []string `json:"ignored"`
	}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/api/v1/context/resolve", "carol", ContextRequest{
		ProjectID: "p1",
		Session:   map[string]string{"TONE": "Explaining"},
		Chat:      map[string]string{"TONE": "Socratic", "mood": "happy"},
	}, &resolved))
	assert.Equal(t, "Socratic", resolved.Context.Values["TONE"].Preset.Name)
	assert.Equal(t, []string{"mood"}, resolved.Ignored)

	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPost, "/api/v1/context/resolve", "nobody",
		ContextRequest{ProjectID: "p1"}, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, "/api/v1/context/resolve", "carol",
		ContextRequest{}, nil))

	lockChat(t, f, "chat-1")

	var preview InstructionsResponse
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/api/v1/context/instructions", "carol",
		ContextRequest{ProjectID: "p1", ChatID: "chat-1"}, &preview))
	require.NotEmpty(t, preview.Blocks)
	assert.Len(t, preview.Messages, len(preview.Blocks))
	last := preview.Blocks[len(preview.Blocks)-1]
	assert.Equal(t, instructions.BlockChat, last.Name)
	assert.Contains(t, last.Text, "Agree the launch plan")

	preview = InstructionsResponse{}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/api/v1/context/instructions", "carol",
		ContextRequest{ProjectID: "p1"}, &preview))
	for _, b := range preview.Blocks {
		assert.NotEqual(t, instructions.BlockChat, b.Name)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, WithRateLimit(0.001, 1))

	body := FieldRequest{Key: definition.KeyPrimaryGoal, Value: "Ship v1"}
	assert.Equal(t, http.StatusOK, f.call(t, http.MethodPost, pdePath+"/propose_lock", "alice", body, nil))
	assert.Equal(t, http.StatusTooManyRequests, f.call(t, http.MethodPost, pdePath+"/propose_lock", "alice", body, nil))
	// Buckets are per user.
	assert.Equal(t, http.StatusOK, f.call(t, http.MethodPost, pdePath+"/propose_lock", "carol",
		FieldRequest{Key: "scope.in_scope", Value: "The API"}, nil))
	// Actions without a model call are not limited.
	assert.Equal(t, http.StatusOK, f.call(t, http.MethodPost, pdePath+"/reopen_field", "alice",
		ReopenRequest{Key: definition.KeyPrimaryGoal}, nil))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, WithMetrics(metrics.New()))

	f.call(t, http.MethodGet, "/api/v1/catalog", "", nil, nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `workbench_http_requests_total{code="200",route="catalog"} 1`)
}

func TestModelStatusAndReset(t *testing.T) {
	f := newFixture(t)
	f.models.MarkEndpointFailure("qwen")

	assert.Equal(t, http.StatusUnauthorized, f.call(t, http.MethodGet, "/api/v1/models", "", nil, nil))

	var st model.Status
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/models", "alice", nil, &st))
	assert.Equal(t, "qwen", st.Default)
	for _, cs := range st.Capabilities {
		if cs.Capability == model.CapabilityValidating {
			assert.Equal(t, []string{"claude-haiku"}, cs.Available)
		}
	}

	assert.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/api/v1/models/qwen/reset", "alice", nil, nil))
	assert.True(t, f.models.IsEndpointAvailable("qwen"))
	assert.Nil(t, f.models.GetEndpointHealth("qwen"))

	var resp ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPost, "/api/v1/models/gpt-9/reset", "alice", nil, &resp))
	assert.Contains(t, resp.Error, "gpt-9")
}
