package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jayusctrojan/empire-search/internal/store"
)

func validUnit() *store.IndexedUnit {
	return &store.IndexedUnit{
		UnitID:        "doc-1-003",
		ParentID:      "doc-1",
		SequenceIndex: 3,
		Text:          "some content",
		Attributes:    map[string]string{"type": "policy"},
	}
}

func TestValidateUnit(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*store.IndexedUnit)
		wantErr bool
	}{
		{"valid", func(*store.IndexedUnit) {}, false},
		{"empty text is allowed", func(u *store.IndexedUnit) { u.Text = "" }, false},
		{"no attributes is allowed", func(u *store.IndexedUnit) { u.Attributes = nil }, false},
		{"missing unit id", func(u *store.IndexedUnit) { u.UnitID = "" }, true},
		{"oversized unit id", func(u *store.IndexedUnit) { u.UnitID = strings.Repeat("x", MaxUnitIDLength+1) }, true},
		{"missing parent id", func(u *store.IndexedUnit) { u.ParentID = "" }, true},
		{"negative sequence", func(u *store.IndexedUnit) { u.SequenceIndex = -1 }, true},
		{"oversized text", func(u *store.IndexedUnit) { u.Text = strings.Repeat("a", MaxTextBytes+1) }, true},
		{"invalid utf8", func(u *store.IndexedUnit) { u.Text = string([]byte{0xff, 0xfe}) }, true},
		{"empty attribute key", func(u *store.IndexedUnit) { u.Attributes = map[string]string{"": "v"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validUnit()
			tt.mutate(u)
			err := ValidateUnit(u)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}

	require.Error(t, ValidateUnit(nil))
}

func TestValidateBatch(t *testing.T) {
	a, b := validUnit(), validUnit()
	b.UnitID = "doc-1-004"
	require.NoError(t, ValidateBatch([]*store.IndexedUnit{a, b}))

	dup := validUnit()
	err := ValidateBatch([]*store.IndexedUnit{a, dup})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")

	bad := validUnit()
	bad.ParentID = ""
	err = ValidateBatch([]*store.IndexedUnit{a, b, bad})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unit 2")
}
