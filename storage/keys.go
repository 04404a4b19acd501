package storage

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// Bucket names.
const (
	BucketDirectory = "WORKBENCH_DIRECTORY"
	BucketFields    = "WORKBENCH_FIELDS"
	BucketLedgers   = "WORKBENCH_LEDGERS"
	BucketArtefacts = "WORKBENCH_ARTEFACTS"
)

var (
	tokenPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	fieldKeyUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// token makes s usable as one KV key token. Safe ids pass through; anything
// else is base64 encoded behind '='.
func token(s string) string {
	if tokenPattern.MatchString(s) {
		return s
	}
	return "=" + base64.RawURLEncoding.EncodeToString([]byte(s))
}

func projectKey(id string) string { return "project." + token(id) }

func userKey(id string) string { return "user." + token(id) }

func profileKey(userID string) string { return "profile." + token(userID) }

func prefsKey(projectID, userID string) string {
	return "prefs." + token(projectID) + "." + token(userID)
}

// documentPrefix maps a document ID (type/project[/scope]) onto key tokens.
func documentPrefix(documentID string) string {
	parts := strings.Split(documentID, "/")
	for i, p := range parts {
		parts[i] = token(p)
	}
	return "doc." + strings.Join(parts, ".")
}

// fieldKey stores the field under its document prefix. Field keys are dotted
// already; the stored value carries the exact key.
func fieldKey(documentID, key string) string {
	k := strings.Trim(fieldKeyUnsafe.ReplaceAllString(key, "_"), ".")
	if k == "" {
		k = "_"
	}
	return documentPrefix(documentID) + "." + k
}

func ledgerKey(projectID string) string { return "ledger." + token(projectID) }

func artefactKey(projectID, id string) string {
	return "artefact." + token(projectID) + "." + token(id)
}
