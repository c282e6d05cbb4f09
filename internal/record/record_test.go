package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intField(name string, required Requirement, mode WriteMode) FieldDescriptor {
	return FieldDescriptor{
		Name:      name,
		Required:  required,
		WriteMode: mode,
		Validate: func(v any) error {
			if _, ok := v.(int); !ok {
				return structureErrorf("expected int")
			}
			return nil
		},
	}
}

func TestRecord_RequiredFieldsMustBePresent(t *testing.T) {
	r := New([]FieldDescriptor{
		intField("amount", Required, Updatable),
		intField("note", Optional, Updatable),
	}, nil)

	err := r.Update(map[string]any{"note": 1})
	require.Error(t, err)

	err = r.Update(map[string]any{"amount": 100})
	require.NoError(t, err)
}

func TestRecord_WriteOnceFieldRejectsChange(t *testing.T) {
	r := New([]FieldDescriptor{
		intField("reference_id", Required, WriteOnce),
	}, nil)

	require.NoError(t, r.Update(map[string]any{"reference_id": 1}))
	require.NoError(t, r.Update(map[string]any{"reference_id": 1}))

	err := r.Update(map[string]any{"reference_id": 2})
	require.Error(t, err)
	var structErr *StructureError
	require.ErrorAs(t, err, &structErr)
}

func TestRecord_UnknownFieldRejected(t *testing.T) {
	r := New([]FieldDescriptor{intField("amount", Required, Updatable)}, nil)
	err := r.Update(map[string]any{"bogus": 1, "amount": 1})
	require.Error(t, err)
	_, ok := r.Get("amount")
	require.False(t, ok, "a rejected diff must not partially apply")
}

func TestRecord_CustomChecksCanRejectDiff(t *testing.T) {
	calls := 0
	r := New([]FieldDescriptor{intField("a", Optional, Updatable)}, func(diff map[string]any) error {
		calls++
		if v, ok := diff["a"]; ok && v.(int) < 0 {
			return structureErrorf("a must be non-negative")
		}
		return nil
	})

	require.Error(t, r.Update(map[string]any{"a": -1}))
	require.NoError(t, r.Update(map[string]any{"a": 5}))
	require.Equal(t, 2, calls)
}

func TestRecord_HasChangedAndWhatChanged(t *testing.T) {
	r := New([]FieldDescriptor{intField("a", Optional, Updatable)}, nil)
	require.False(t, r.HasChanged())

	require.NoError(t, r.Update(map[string]any{"a": 1}))
	require.True(t, r.HasChanged())
	require.Len(t, r.WhatChanged(), 1)

	r.Flatten()
	require.False(t, r.HasChanged())
	require.Empty(t, r.WhatChanged())
}

func TestRecord_NestedRecordsParticipateInFullRecordRoundTrip(t *testing.T) {
	child := func() *Record {
		return New([]FieldDescriptor{intField("x", Required, WriteOnce)}, nil)
	}
	parent := New([]FieldDescriptor{
		{Name: "inner", Required: Required, WriteMode: Updatable, Nested: child},
	}, nil)

	require.NoError(t, parent.FromFullRecord(map[string]any{
		"inner": map[string]any{"x": 7},
	}))

	full := parent.GetFullRecord()
	inner, ok := full["inner"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 7, inner["x"])

	// Re-applying the same nested diff must not violate the child's
	// write-once field.
	require.NoError(t, parent.FromFullRecord(map[string]any{
		"inner": map[string]any{"x": 7},
	}))

	// A conflicting nested diff must fail the child's write-once check.
	err := parent.FromFullRecord(map[string]any{
		"inner": map[string]any{"x": 8},
	})
	require.Error(t, err)
}

func TestRecord_EqualIgnoresPendingHistory(t *testing.T) {
	a := New([]FieldDescriptor{intField("a", Optional, Updatable)}, nil)
	b := New([]FieldDescriptor{intField("a", Optional, Updatable)}, nil)

	require.NoError(t, a.Update(map[string]any{"a": 1}))
	require.NoError(t, b.Update(map[string]any{"a": 1}))
	a.Flatten()

	require.True(t, a.Equal(b))
}
