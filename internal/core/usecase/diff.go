package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/atviraknyga/bookapi/internal/core/domain"
)

// DiffEngine computes policy-filtered before/after diffs. It holds the
// registry injected at startup and has no other state.
type DiffEngine struct {
	registry domain.PolicyRegistry
}

func NewDiffEngine(registry domain.PolicyRegistry) *DiffEngine {
	return &DiffEngine{registry: registry}
}

// Compute applies the entity's tracking policy to the union of field keys in
// before and after. Excluded fields are dropped from both sides, redacted
// fields keep their name with the value replaced by the sentinel, and
// FieldsChanged lists the surviving keys whose canonical representation
// differs. A nil side is treated as the empty snapshot (create/delete).
//
// Untracked entities yield (nil, nil): callers must treat that as "do not
// audit", not as an error. Both sides nil is a programmer error.
func (e *DiffEngine) Compute(entity string, before, after map[string]any) (*domain.DiffResult, error) {
	policy, ok := e.registry.Policy(entity)
	if !ok {
		return nil, nil
	}
	if before == nil && after == nil {
		return nil, errors.New("diff: before and after are both absent")
	}

	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	result := domain.DiffResult{
		Diff: domain.Diff{
			Before: make(map[string]any),
			After:  make(map[string]any),
		},
	}

	for key := range keys {
		if _, excluded := policy.Exclude[key]; excluded {
			continue
		}

		beforeVal, inBefore := before[key]
		afterVal, inAfter := after[key]
		if _, redacted := policy.Redact[key]; redacted {
			// Changes stay detectable through the raw values; the stored
			// representation never reveals them.
			if canonical(beforeVal) != canonical(afterVal) || inBefore != inAfter {
				result.FieldsChanged = append(result.FieldsChanged, key)
			}
			if inBefore {
				result.Diff.Before[key] = domain.RedactedValue
			}
			if inAfter {
				result.Diff.After[key] = domain.RedactedValue
			}
			continue
		}

		if inBefore {
			result.Diff.Before[key] = beforeVal
		}
		if inAfter {
			result.Diff.After[key] = afterVal
		}
		if canonical(beforeVal) != canonical(afterVal) || inBefore != inAfter {
			result.FieldsChanged = append(result.FieldsChanged, key)
		}
	}

	sort.Strings(result.FieldsChanged)
	return &result, nil
}

// canonical serializes a value so comparison is stable for reference types
// (times, slices, nested maps) instead of comparing by identity.
func canonical(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
