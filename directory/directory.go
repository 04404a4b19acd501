// Package directory holds the tenancy records the workbench reads on every
// request: projects and their roles, users, axis profiles and per-project
// preferences.
package directory

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/c360studio/workbench/axis"
)

// ErrNotFound is returned when a directory record does not exist.
var ErrNotFound = errors.New("directory record not found")

// ProjectKind separates governed projects from scratch space.
type ProjectKind string

const (
	// KindStandard projects carry governance text and full lock discipline.
	KindStandard ProjectKind = "STANDARD"
	// KindSandbox projects carry no governance text.
	KindSandbox ProjectKind = "SANDBOX"
)

// IsValid reports whether the kind is known.
func (k ProjectKind) IsValid() bool {
	return k == KindStandard || k == KindSandbox
}

// PrimaryType classifies what a project is for.
type PrimaryType string

const (
	TypeMeta       PrimaryType = "META"
	TypeKnowledge  PrimaryType = "KNOWLEDGE"
	TypeDelivery   PrimaryType = "DELIVERY"
	TypeResearch   PrimaryType = "RESEARCH"
	TypeOperations PrimaryType = "OPERATIONS"
)

// PrimaryTypes lists the accepted primary types.
var PrimaryTypes = []PrimaryType{TypeMeta, TypeKnowledge, TypeDelivery, TypeResearch, TypeOperations}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusActive   ProjectStatus = "ACTIVE"
	StatusPaused   ProjectStatus = "PAUSED"
	StatusArchived ProjectStatus = "ARCHIVED"
)

// ProjectStatuses lists the accepted project statuses.
var ProjectStatuses = []ProjectStatus{StatusActive, StatusPaused, StatusArchived}

// MemberRole is the role a user holds in a project membership.
type MemberRole string

const (
	RoleOwner       MemberRole = "OWNER"
	RoleManager     MemberRole = "MANAGER"
	RoleContributor MemberRole = "CONTRIBUTOR"
	RoleObserver    MemberRole = "OBSERVER"
)

// IsValid reports whether the role is known.
func (r MemberRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleContributor, RoleObserver:
		return true
	}
	return false
}

// Authority is what a user may do to a project's definition documents.
type Authority int

const (
	// AuthorityNone may read but not edit.
	AuthorityNone Authority = iota
	// AuthorityEditor may draft and propose.
	AuthorityEditor
	// AuthorityCommitter may lock, reopen, commit and accept.
	AuthorityCommitter
)

// String returns the lower-case authority name.
func (a Authority) String() string {
	switch a {
	case AuthorityCommitter:
		return "committer"
	case AuthorityEditor:
		return "editor"
	}
	return "none"
}

// Membership binds a user to a project with a role.
type Membership struct {
	UserID string     `json:"user_id"`
	Role   MemberRole `json:"role"`
}

// Project is a tenant workspace.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Owner       string        `json:"owner"`
	Committers  []string      `json:"committers,omitempty"`
	Members     []Membership  `json:"members,omitempty"`
	Kind        ProjectKind   `json:"kind"`
	Governance  string        `json:"governance,omitempty"`
	PrimaryType PrimaryType   `json:"primary_type,omitempty"`
	Status      ProjectStatus `json:"status,omitempty"`
	Purpose     string        `json:"purpose,omitempty"`
	// ArtefactRoot is the sanitised folder artefact mirrors are written to.
	ArtefactRoot string `json:"artefact_root,omitempty"`

	// DefinedCKO is the accepted project definition artefact, if any. The
	// artefact ledger owns it; readers fill it in, writers leave it alone.
	DefinedCKO string     `json:"defined_cko,omitempty"`
	DefinedBy  string     `json:"defined_by,omitempty"`
	DefinedAt  *time.Time `json:"defined_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSandbox reports whether the project is a sandbox.
func (p *Project) IsSandbox() bool {
	return p.Kind == KindSandbox
}

// AuthorityOf returns what userID may do on this project. The owner, listed
// committers and OWNER/MANAGER members are committers; CONTRIBUTOR members
// are editors; everyone else, observers included, has no edit authority.
func (p *Project) AuthorityOf(userID string) Authority {
	if userID == "" {
		return AuthorityNone
	}
	if userID == p.Owner || slices.Contains(p.Committers, userID) {
		return AuthorityCommitter
	}
	for _, m := range p.Members {
		if m.UserID != userID {
			continue
		}
		switch m.Role {
		case RoleOwner, RoleManager:
			return AuthorityCommitter
		case RoleContributor:
			return AuthorityEditor
		}
	}
	return AuthorityNone
}

// CanView reports whether userID may read the project: the owner, listed
// committers and every member, observers included.
func (p *Project) CanView(userID string) bool {
	if userID == "" {
		return false
	}
	if p.AuthorityOf(userID) != AuthorityNone {
		return true
	}
	return slices.ContainsFunc(p.Members, func(m Membership) bool { return m.UserID == userID })
}

// Actor returns userID acting on this project.
func (p *Project) Actor(userID string) Actor {
	return Actor{UserID: userID, Authority: p.AuthorityOf(userID)}
}

// Actor is a user acting on one project with the authority they hold there.
type Actor struct {
	UserID    string    `json:"user_id"`
	Authority Authority `json:"-"`
}

// IsCommitter reports whether the actor may lock, commit and accept.
func (a Actor) IsCommitter() bool {
	return a.Authority == AuthorityCommitter
}

// CanEdit reports whether the actor may draft and propose.
func (a Actor) CanEdit() bool {
	return a.Authority >= AuthorityEditor
}

// User is a workbench account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is a user's personal axis selections.
type Profile struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Language   string                 `json:"language,omitempty"`
	Selections map[axis.Axis]axis.Ref `json:"selections,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// ProjectPrefs are a user's axis selections scoped to one project.
type ProjectPrefs struct {
	ProjectID  string                 `json:"project_id"`
	UserID     string                 `json:"user_id"`
	Language   string                 `json:"language,omitempty"`
	Selections map[axis.Axis]axis.Ref `json:"selections,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Reader looks up directory records. Every method returns an error wrapping
// ErrNotFound when the record does not exist.
type Reader interface {
	Project(ctx context.Context, id string) (*Project, error)
	User(ctx context.Context, id string) (*User, error)
	Profile(ctx context.Context, userID string) (*Profile, error)
	Prefs(ctx context.Context, projectID, userID string) (*ProjectPrefs, error)
}

// Writer stores directory records, replacing any existing record.
type Writer interface {
	PutProject(ctx context.Context, p *Project) error
	PutUser(ctx context.Context, u *User) error
	PutProfile(ctx context.Context, p *Profile) error
	PutPrefs(ctx context.Context, p *ProjectPrefs) error
}

// Store is a readable and writable directory.
type Store interface {
	Reader
	Writer
}
