package domain

import (
	"errors"
	"fmt"
	"sort"
)

// RedactedValue replaces redacted field values in any audit-visible output.
const RedactedValue = "[REDACTED]"

// TrackingPolicy decides how mutations of one entity type are audited.
// Excluded fields vanish from the diff entirely; redacted fields keep their
// name but never their value.
type TrackingPolicy struct {
	Track   bool
	Exclude map[string]struct{}
	Redact  map[string]struct{}
}

// PolicyRegistry is the immutable entity-name → policy mapping. It is built
// once at startup and shared read-only; adding a trackable entity is a
// registry change and nothing else.
type PolicyRegistry struct {
	policies map[string]TrackingPolicy
	tracked  []string
}

func NewPolicyRegistry(policies map[string]TrackingPolicy) (PolicyRegistry, error) {
	owned := make(map[string]TrackingPolicy, len(policies))
	tracked := make([]string, 0, len(policies))
	for name, policy := range policies {
		if name == "" {
			return PolicyRegistry{}, errors.New("policy entity name must not be empty")
		}
		for field := range policy.Exclude {
			if _, both := policy.Redact[field]; both {
				return PolicyRegistry{}, fmt.Errorf("entity %s: field %s is both excluded and redacted", name, field)
			}
		}
		owned[name] = TrackingPolicy{
			Track:   policy.Track,
			Exclude: copySet(policy.Exclude),
			Redact:  copySet(policy.Redact),
		}
		if policy.Track {
			tracked = append(tracked, name)
		}
	}
	sort.Strings(tracked)
	return PolicyRegistry{policies: owned, tracked: tracked}, nil
}

func (r PolicyRegistry) IsTracked(entity string) bool {
	policy, ok := r.policies[entity]
	return ok && policy.Track
}

func (r PolicyRegistry) Policy(entity string) (TrackingPolicy, bool) {
	policy, ok := r.policies[entity]
	if !ok || !policy.Track {
		return TrackingPolicy{}, false
	}
	return policy, true
}

// TrackedEntities returns the sorted names of all tracked entity types.
func (r PolicyRegistry) TrackedEntities() []string {
	return append([]string(nil), r.tracked...)
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// FieldSet builds a set from a list of field names.
func FieldSet(fields ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
