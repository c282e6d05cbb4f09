package storage

import (
	"encoding/json"
	"fmt"
	"path"
)

// Codec converts between a typed Go value and the bytes stored under a
// key. JSONCodec covers the common case; callers with wire-specific
// serialization (e.g. a StructureChecker's GetFullRecord) supply their own.
type Codec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// JSONCodec builds a Codec backed by encoding/json.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(v T) ([]byte, error) { return json.Marshal(v) },
		Decode: func(b []byte) (T, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		},
	}
}

// Value is a single cached, persisted value addressed by a hierarchical
// key path.
type Value[T any] struct {
	factory      *Factory
	key          string
	codec        Codec[T]
	defaultValue T
	hasDefault   bool
}

// NewValue builds a Value stored at key.
func NewValue[T any](f *Factory, key string, codec Codec[T]) *Value[T] {
	return &Value[T]{factory: f, key: key, codec: codec}
}

// WithDefault makes Get return def instead of an error when the value has
// never been set.
func (v *Value[T]) WithDefault(def T) *Value[T] {
	v.hasDefault = true
	v.defaultValue = def
	return v
}

// Exists reports whether the value has been set.
func (v *Value[T]) Exists() (bool, error) {
	return v.factory.has(v.key)
}

// Get returns the current value, the default if one was configured and
// none is set, or an error.
func (v *Value[T]) Get() (T, error) {
	raw, ok, err := v.factory.get(v.key)
	if err != nil {
		var zero T
		return zero, err
	}
	if !ok {
		if v.hasDefault {
			return v.defaultValue, nil
		}
		var zero T
		return zero, fmt.Errorf("storage: value %q does not exist", v.key)
	}
	return v.codec.Decode(raw)
}

// Set stores value. Must be called within Factory.Atomic.
func (v *Value[T]) Set(value T) error {
	raw, err := v.codec.Encode(value)
	if err != nil {
		return err
	}
	return v.factory.set(v.key, raw)
}

// List is an append-only, index-addressed persisted sequence.
type List[T any] struct {
	base   string
	codec  Codec[T]
	length *Value[int]
}

// NewList builds a List rooted at base.
func NewList[T any](f *Factory, base string, codec Codec[T]) *List[T] {
	return &List[T]{
		base:   base,
		codec:  codec,
		length: NewValue[int](f, path.Join(base, "__len"), JSONCodec[int]()).WithDefault(0),
	}
}

// Len returns the number of elements appended so far.
func (l *List[T]) Len() (int, error) {
	return l.length.Get()
}

// Append adds value as the new last element.
func (l *List[T]) Append(value T) error {
	n, err := l.length.Get()
	if err != nil {
		return err
	}
	if err := l.length.Set(n + 1); err != nil {
		return err
	}
	return l.length.factory.set(l.elementKey(n), mustEncode(l.codec, value))
}

// Get returns the element at index, which must be within [0, Len()).
func (l *List[T]) Get(index int) (T, error) {
	var zero T
	n, err := l.length.Get()
	if err != nil {
		return zero, err
	}
	if index < 0 || index >= n {
		return zero, fmt.Errorf("storage: list index %d out of range [0,%d)", index, n)
	}
	raw, ok, err := l.length.factory.get(l.elementKey(index))
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("storage: list element %d missing", index)
	}
	return l.codec.Decode(raw)
}

func (l *List[T]) elementKey(index int) string {
	return path.Join(l.base, fmt.Sprintf("%d", index))
}

func mustEncode[T any](codec Codec[T], value T) []byte {
	raw, err := codec.Encode(value)
	if err != nil {
		// Encode is a pure marshalling function; a well-formed T cannot
		// fail to encode once it has already been constructed.
		panic("storage: encode failed: " + err.Error())
	}
	return raw
}

// dictMeta tracks the head of a Dict's doubly linked traversal list and
// its current size.
type dictMeta struct {
	FirstKey string `json:"first_key"`
	Length   int    `json:"length"`
}

// linkEntry is one node of a Dict's doubly linked key order, keyed by the
// Dict's data key so deletion can splice the list without a full scan.
type linkEntry struct {
	Prev string `json:"prev"`
	Next string `json:"next"`
	Key  string `json:"key"`
}

// Dict is a persistent map-like container with O(1) insertion and
// deletion that still supports ordered key traversal, via an internal
// doubly linked list — the same structure the reference implementation's
// StorableDict keeps alongside the flat key-value entries.
type Dict[T any] struct {
	factory *Factory
	base    string
	codec   Codec[T]
	meta    *Value[dictMeta]
}

// NewDict builds a Dict rooted at base.
func NewDict[T any](f *Factory, base string, codec Codec[T]) *Dict[T] {
	return &Dict[T]{
		factory: f,
		base:    base,
		codec:   codec,
		meta:    NewValue[dictMeta](f, path.Join(base, "__meta"), JSONCodec[dictMeta]()).WithDefault(dictMeta{}),
	}
}

func (d *Dict[T]) dataKey(key string) string { return path.Join(d.base, "data", key) }
func (d *Dict[T]) linkKey(key string) string { return path.Join(d.base, "ll", key) }

// Has reports whether key currently has a value.
func (d *Dict[T]) Has(key string) (bool, error) {
	return d.factory.has(d.dataKey(key))
}

// Get returns the value stored at key.
func (d *Dict[T]) Get(key string) (T, error) {
	var zero T
	raw, ok, err := d.factory.get(d.dataKey(key))
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("storage: dict key %q does not exist", key)
	}
	return d.codec.Decode(raw)
}

// Len returns the number of entries currently in the Dict.
func (d *Dict[T]) Len() (int, error) {
	meta, err := d.meta.Get()
	if err != nil {
		return 0, err
	}
	return meta.Length, nil
}

// Set inserts or overwrites the value at key, threading it into the
// traversal list on first insertion.
func (d *Dict[T]) Set(key string, value T) error {
	exists, err := d.Has(key)
	if err != nil {
		return err
	}
	if !exists {
		meta, err := d.meta.Get()
		if err != nil {
			return err
		}
		newEntry := linkEntry{Key: key, Next: meta.FirstKey}
		if meta.FirstKey != "" {
			firstEntry, err := d.getLink(meta.FirstKey)
			if err != nil {
				return err
			}
			firstEntry.Prev = key
			if err := d.setLink(meta.FirstKey, firstEntry); err != nil {
				return err
			}
		}
		if err := d.setLink(key, newEntry); err != nil {
			return err
		}
		meta.FirstKey = key
		meta.Length++
		if err := d.meta.Set(meta); err != nil {
			return err
		}
	}
	raw, err := d.codec.Encode(value)
	if err != nil {
		return err
	}
	return d.factory.set(d.dataKey(key), raw)
}

// Delete removes key, splicing it out of the traversal list.
func (d *Dict[T]) Delete(key string) error {
	exists, err := d.Has(key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	entry, err := d.getLink(key)
	if err != nil {
		return err
	}

	meta, err := d.meta.Get()
	if err != nil {
		return err
	}
	meta.Length--

	if entry.Prev != "" {
		prevEntry, err := d.getLink(entry.Prev)
		if err != nil {
			return err
		}
		prevEntry.Next = entry.Next
		if err := d.setLink(entry.Prev, prevEntry); err != nil {
			return err
		}
	} else {
		meta.FirstKey = entry.Next
	}
	if entry.Next != "" {
		nextEntry, err := d.getLink(entry.Next)
		if err != nil {
			return err
		}
		nextEntry.Prev = entry.Prev
		if err := d.setLink(entry.Next, nextEntry); err != nil {
			return err
		}
	}

	if err := d.meta.Set(meta); err != nil {
		return err
	}
	if err := d.factory.del(d.linkKey(key)); err != nil {
		return err
	}
	return d.factory.del(d.dataKey(key))
}

// Keys returns every key currently in the Dict, in traversal-list order
// (most recently inserted first).
func (d *Dict[T]) Keys() ([]string, error) {
	meta, err := d.meta.Get()
	if err != nil {
		return nil, err
	}
	var keys []string
	cursor := meta.FirstKey
	for cursor != "" {
		keys = append(keys, cursor)
		entry, err := d.getLink(cursor)
		if err != nil {
			return nil, err
		}
		cursor = entry.Next
	}
	return keys, nil
}

func (d *Dict[T]) getLink(key string) (linkEntry, error) {
	raw, ok, err := d.factory.get(d.linkKey(key))
	if err != nil {
		return linkEntry{}, err
	}
	if !ok {
		return linkEntry{}, fmt.Errorf("storage: dict link entry %q missing", key)
	}
	var entry linkEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return linkEntry{}, err
	}
	return entry, nil
}

func (d *Dict[T]) setLink(key string, entry linkEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return d.factory.set(d.linkKey(key), raw)
}
