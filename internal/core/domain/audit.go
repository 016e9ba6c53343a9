package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidFilter = errors.New("invalid filter")

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionLogin   Action = "login"
)

// ParseAction converts an externally supplied string into a closed Action
// value. Unknown actions are rejected at the boundary instead of flowing
// through the filter logic as silent no-match strings.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionUpdate, ActionDelete, ActionRestore, ActionLogin:
		return Action(s), nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidFilter, s)
	}
}

// Diff is the policy-filtered before/after pair stored with an audit entry.
type Diff struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// DiffResult pairs a diff with the names of the fields whose canonical
// representation differs between the two sides, sorted ascending.
type DiffResult struct {
	Diff          Diff
	FieldsChanged []string
}

// AuditEntry is one immutable recorded lifecycle event. Entries are created
// exactly once by the audit write path and never updated or deleted.
type AuditEntry struct {
	ID            string
	Timestamp     time.Time
	Entity        string
	EntityID      string
	Action        Action
	ActorID       string
	RequestID     string
	Diff          *Diff
	FieldsChanged []string
}

// AuditFilter narrows the audit read path. All predicates are optional and
// conjunctive except FieldsChanged, which matches an entry when any one of
// the listed field names appears in the entry's own changed-field set.
type AuditFilter struct {
	Entity        string
	EntityID      string
	ActorID       string
	Action        Action
	RequestID     string
	From          *time.Time
	To            *time.Time
	FieldsChanged []string
	Limit         int
	Cursor        *Cursor
}

func (f AuditFilter) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}
	return nil
}

type AuditPage struct {
	Items      []AuditEntry
	NextCursor string
	HasMore    bool
}
