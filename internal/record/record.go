// Package record implements the generic structured-record primitive shared
// by every object exchanged over an off-chain channel: a field-descriptor
// table drives validation, write-once enforcement and diff tracking so the
// protocol layer never has to hand-roll equality or change detection for
// payments, KYC data, or any other wire object.
package record

import (
	"fmt"
	"reflect"
)

// Requirement marks whether a field must be present once the record is
// considered valid.
type Requirement bool

const (
	Required Requirement = true
	Optional Requirement = false
)

// WriteMode marks whether a field, once set, may be changed by a later
// update with a different value.
type WriteMode bool

const (
	WriteOnce WriteMode = true
	Updatable           = false
)

// StructureError reports a violation of a record's field descriptors:
// wrong type, an illegal write to a write-once field, an unknown field, or
// a missing required field.
type StructureError struct {
	msg string
}

func (e *StructureError) Error() string { return e.msg }

func structureErrorf(format string, args ...any) error {
	return &StructureError{msg: fmt.Sprintf(format, args...)}
}

// FieldDescriptor describes one field of a Record.
type FieldDescriptor struct {
	Name      string
	Required  Requirement
	WriteMode WriteMode

	// Validate checks the shape/type of a plain (non-nested) value. It is
	// called on every update that touches this field. Leave nil for fields
	// that accept any value already produced by Go's type system (e.g. a
	// field typed as a concrete Go type at the call site).
	Validate func(value any) error

	// Nested, when set, marks this field as holding another *Record. It
	// constructs a fresh child record so FromFullRecord can recurse into
	// nested diffs the way the reference implementation re-parses nested
	// StructureChecker instances.
	Nested func() *Record
}

// Change is one recorded diff, paired with the record it was applied to
// (which may be a nested child of the record WhatChanged was called on).
type Change struct {
	Record *Record
	Diff   map[string]any
}

// Record is a generic structured, diff-tracked object: the Go analogue of
// the reference implementation's StructureChecker.
type Record struct {
	fields       []FieldDescriptor
	byName       map[string]FieldDescriptor
	customChecks func(diff map[string]any) error

	data         map[string]any
	updateRecord []map[string]any
}

// New builds an empty Record governed by the given field descriptors.
// customChecks, if non-nil, runs after the built-in checks on every Update
// and may reject a diff that is structurally valid but violates a
// domain-specific invariant (e.g. KYC data/signature/certificate must be
// supplied together).
func New(fields []FieldDescriptor, customChecks func(diff map[string]any) error) *Record {
	byName := make(map[string]FieldDescriptor, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	return &Record{
		fields:       fields,
		byName:       byName,
		customChecks: customChecks,
		data:         make(map[string]any),
	}
}

// Get returns a field's current value.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.data[name]
	return v, ok
}

// Has reports whether a field currently has a value.
func (r *Record) Has(name string) bool {
	_, ok := r.data[name]
	return ok
}

// record appends to the update log; flatten clears it.
func (r *Record) record(diff map[string]any) {
	r.updateRecord = append(r.updateRecord, diff)
}

// Flatten resets all recorded diffs on this record and its nested children,
// the way a checkpoint (e.g. a successful commit) absorbs prior changes.
func (r *Record) Flatten() {
	r.updateRecord = nil
	for _, v := range r.data {
		if child, ok := v.(*Record); ok {
			child.Flatten()
		}
	}
}

// Update applies diff to the record, enforcing field types, write-once
// fields, unknown-field rejection, required-field completeness and any
// custom checks, in that order. A diff that fails validation leaves the
// record unchanged.
func (r *Record) Update(diff map[string]any) error {
	for key := range diff {
		if _, known := r.byName[key]; !known {
			return structureErrorf("record: unknown field %q", key)
		}
	}

	for _, f := range r.fields {
		value, present := diff[f.Name]
		if !present {
			continue
		}
		if f.Validate != nil {
			if err := f.Validate(value); err != nil {
				return structureErrorf("record: field %q: %v", f.Name, err)
			}
		}
		if existing, ok := r.data[f.Name]; ok && f.WriteMode == WriteOnce {
			if !valuesEqual(existing, value) {
				return structureErrorf("record: field %q cannot be changed once set", f.Name)
			}
		}
	}

	changed := false
	for key, value := range diff {
		if existing, ok := r.data[key]; !ok || !valuesEqual(existing, value) {
			r.data[key] = value
			changed = true
		}
	}

	for _, f := range r.fields {
		if f.Required == Required {
			if _, ok := r.data[f.Name]; !ok {
				return structureErrorf("record: missing required field %q", f.Name)
			}
		}
	}

	if r.customChecks != nil {
		if err := r.customChecks(diff); err != nil {
			return err
		}
	}

	if changed {
		r.record(diff)
	}
	return nil
}

// GetFullRecord returns the full hierarchy of current field values,
// recursing into nested records, suitable for serialization.
func (r *Record) GetFullRecord() map[string]any {
	out := make(map[string]any, len(r.data))
	for key, value := range r.data {
		if child, ok := value.(*Record); ok {
			out[key] = child.GetFullRecord()
		} else {
			out[key] = value
		}
	}
	return out
}

// FromFullRecord applies a full (possibly nested) record diff, constructing
// or updating nested child records in place via each field's Nested
// constructor. Updating an existing nested child in place (rather than
// replacing it) is what lets a write-once field inside that child still be
// enforced across repeated calls.
func (r *Record) FromFullRecord(diff map[string]any) error {
	applied := make(map[string]any, len(diff))
	for key, raw := range diff {
		f, known := r.byName[key]
		if !known {
			continue
		}
		if f.Nested == nil {
			applied[key] = raw
			continue
		}
		nestedDiff, ok := raw.(map[string]any)
		if !ok {
			return structureErrorf("record: field %q: expected nested record diff", key)
		}
		var child *Record
		if existing, ok := r.data[key].(*Record); ok {
			child = existing
		} else {
			child = f.Nested()
		}
		if err := child.FromFullRecord(nestedDiff); err != nil {
			return err
		}
		applied[key] = child
	}
	return r.Update(applied)
}

// HasChanged reports whether this record, or any nested record reachable
// from it, has unflattened recorded diffs.
func (r *Record) HasChanged() bool {
	if len(r.updateRecord) > 0 {
		return true
	}
	for _, v := range r.data {
		if child, ok := v.(*Record); ok && child.HasChanged() {
			return true
		}
	}
	return false
}

// WhatChanged returns every recorded diff on this record and its nested
// children, in depth-first order.
func (r *Record) WhatChanged() []Change {
	var out []Change
	for _, diff := range r.updateRecord {
		out = append(out, Change{Record: r, Diff: diff})
	}
	for _, v := range r.data {
		if child, ok := v.(*Record); ok {
			out = append(out, child.WhatChanged()...)
		}
	}
	return out
}

// Equal compares two records by their current data only, ignoring pending
// update history — two records that reached the same state by different
// paths are equal.
func (r *Record) Equal(other *Record) bool {
	if other == nil {
		return false
	}
	if len(r.data) != len(other.data) {
		return false
	}
	for key, value := range r.data {
		otherValue, ok := other.data[key]
		if !ok {
			return false
		}
		if child, isChild := value.(*Record); isChild {
			otherChild, ok := otherValue.(*Record)
			if !ok || !child.Equal(otherChild) {
				return false
			}
			continue
		}
		if !valuesEqual(value, otherValue) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the record: a fresh record built from the
// same field descriptors, populated by round-tripping the current state
// through GetFullRecord/FromFullRecord so nested child records are cloned
// too, not shared.
func (r *Record) Clone() *Record {
	clone := New(r.fields, r.customChecks)
	if err := clone.FromFullRecord(r.GetFullRecord()); err != nil {
		// Cloning a record that was itself built through Update/FromFullRecord
		// cannot fail these same checks again.
		panic("record: clone of a valid record became invalid: " + err.Error())
	}
	return clone
}

func valuesEqual(a, b any) bool {
	if ar, ok := a.(*Record); ok {
		br, ok := b.(*Record)
		return ok && ar.Equal(br)
	}
	return reflect.DeepEqual(a, b)
}
