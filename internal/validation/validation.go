// Package validation checks units before they enter the index. The
// stores themselves accept anything; this is the single gate that
// enforces identifier and size rules at ingest time.
package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/jayusctrojan/empire-search/internal/errors"
	"github.com/jayusctrojan/empire-search/internal/store"
)

const (
	// MaxUnitIDLength bounds identifiers so they stay usable as index
	// keys and log fields.
	MaxUnitIDLength = 256

	// MaxTextBytes bounds unit text. Larger payloads should be split
	// into more units under the same parent.
	MaxTextBytes = 1 << 20 // 1 MiB

	// MaxAttributes bounds the attribute map per unit.
	MaxAttributes = 64
)

// ValidateUnit checks a single unit. The returned error carries
// ErrCodeInvalidInput.
func ValidateUnit(u *store.IndexedUnit) error {
	if u == nil {
		return errors.ValidationError("unit is nil", nil)
	}
	if u.UnitID == "" {
		return errors.ValidationError("unit_id is required", nil)
	}
	if len(u.UnitID) > MaxUnitIDLength {
		return errors.ValidationError(
			fmt.Sprintf("unit_id %q exceeds %d bytes", truncateID(u.UnitID), MaxUnitIDLength), nil)
	}
	if u.ParentID == "" {
		return errors.ValidationError(
			fmt.Sprintf("unit %s: parent_id is required", u.UnitID), nil)
	}
	if len(u.ParentID) > MaxUnitIDLength {
		return errors.ValidationError(
			fmt.Sprintf("unit %s: parent_id exceeds %d bytes", u.UnitID, MaxUnitIDLength), nil)
	}
	if u.SequenceIndex < 0 {
		return errors.ValidationError(
			fmt.Sprintf("unit %s: sequence_index must be >= 0, got %d", u.UnitID, u.SequenceIndex), nil)
	}
	if len(u.Text) > MaxTextBytes {
		return errors.ValidationError(
			fmt.Sprintf("unit %s: text exceeds %d bytes", u.UnitID, MaxTextBytes), nil)
	}
	if !utf8.ValidString(u.Text) {
		return errors.ValidationError(
			fmt.Sprintf("unit %s: text is not valid UTF-8", u.UnitID), nil)
	}
	if len(u.Attributes) > MaxAttributes {
		return errors.ValidationError(
			fmt.Sprintf("unit %s: more than %d attributes", u.UnitID, MaxAttributes), nil)
	}
	for k := range u.Attributes {
		if k == "" {
			return errors.ValidationError(
				fmt.Sprintf("unit %s: empty attribute key", u.UnitID), nil)
		}
	}
	return nil
}

// ValidateBatch checks every unit and rejects duplicate unit IDs
// within the batch. Later duplicates would silently win at the store
// level, which almost always means a producer bug.
func ValidateBatch(units []*store.IndexedUnit) error {
	seen := make(map[string]struct{}, len(units))
	for i, u := range units {
		if err := ValidateUnit(u); err != nil {
			return fmt.Errorf("unit %d: %w", i, err)
		}
		if _, dup := seen[u.UnitID]; dup {
			return errors.ValidationError(
				fmt.Sprintf("duplicate unit_id %q in batch", u.UnitID), nil)
		}
		seen[u.UnitID] = struct{}{}
	}
	return nil
}

func truncateID(id string) string {
	if len(id) <= 32 {
		return id
	}
	return id[:32] + "…"
}
