package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const backupRecoveryKey = "__backup_recovery"

// backupRecord is the wire/disk shape of the crash-recovery checkpoint:
// every key about to be touched, with its previous value (or a marker
// that it did not exist), so a crash mid-commit can be undone by replaying
// this record — idempotently, since recovery may itself be interrupted.
type backupRecord struct {
	OldEntries     map[string]string `json:"old_entries"`
	NonExistentKeys []string         `json:"non_existent_keys"`
}

// Factory is the central storage subsystem: it tracks an in-flight
// transaction's writes and deletes in memory, and only touches the
// backing KVBackend when the outermost Atomic call completes, with a
// backup checkpoint bracketing the write so a crash mid-commit can always
// be rolled forward to a consistent state on reopen.
type Factory struct {
	backend KVBackend

	depth   int
	cache   map[string][]byte
	deleted map[string]struct{}
}

// NewFactory wraps backend, running crash recovery immediately in case a
// prior process died mid-commit.
func NewFactory(backend KVBackend) (*Factory, error) {
	f := &Factory{
		backend: backend,
		cache:   make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
	if err := f.crashRecovery(); err != nil {
		return nil, fmt.Errorf("storage: crash recovery: %w", err)
	}
	return f, nil
}

func (f *Factory) get(key string) ([]byte, bool, error) {
	if _, gone := f.deleted[key]; gone {
		return nil, false, nil
	}
	if v, ok := f.cache[key]; ok {
		return v, true, nil
	}
	return f.backend.Get(key)
}

func (f *Factory) set(key string, value []byte) error {
	if f.depth == 0 {
		return fmt.Errorf("storage: writes must happen within Atomic")
	}
	f.cache[key] = value
	delete(f.deleted, key)
	return nil
}

func (f *Factory) del(key string) error {
	if f.depth == 0 {
		return fmt.Errorf("storage: writes must happen within Atomic")
	}
	delete(f.cache, key)
	f.deleted[key] = struct{}{}
	return nil
}

func (f *Factory) has(key string) (bool, error) {
	if _, gone := f.deleted[key]; gone {
		return false, nil
	}
	if _, ok := f.cache[key]; ok {
		return true, nil
	}
	return f.backend.Has(key)
}

// Atomic runs fn with writes buffered in memory, committing them to the
// backend only once the outermost Atomic call returns without error.
// Nested calls (a component calling Atomic from within another
// component's Atomic) share the same buffered transaction, exactly as the
// reference implementation's re-entrant context manager.
func (f *Factory) Atomic(fn func() error) error {
	f.depth++
	err := fn()
	f.depth--
	if f.depth == 0 {
		if err != nil {
			f.cache = make(map[string][]byte)
			f.deleted = make(map[string]struct{})
			return err
		}
		return f.persistCache()
	}
	return err
}

func (f *Factory) persistCache() error {
	touched := make(map[string]struct{}, len(f.cache)+len(f.deleted))
	for k := range f.cache {
		touched[k] = struct{}{}
	}
	for k := range f.deleted {
		touched[k] = struct{}{}
	}

	old := make(map[string]string, len(touched))
	var nonExistent []string
	for k := range touched {
		v, ok, err := f.backend.Get(k)
		if err != nil {
			return err
		}
		if ok {
			old[k] = base64.StdEncoding.EncodeToString(v)
		} else {
			nonExistent = append(nonExistent, k)
		}
	}

	backup, err := json.Marshal(backupRecord{OldEntries: old, NonExistentKeys: nonExistent})
	if err != nil {
		return err
	}
	if err := f.backend.Set(backupRecoveryKey, backup); err != nil {
		return err
	}

	for k, v := range f.cache {
		if err := f.backend.Set(k, v); err != nil {
			return err
		}
	}
	for k := range f.deleted {
		if err := f.backend.Delete(k); err != nil {
			return err
		}
	}
	if err := f.backend.Delete(backupRecoveryKey); err != nil {
		return err
	}

	f.cache = make(map[string][]byte)
	f.deleted = make(map[string]struct{})
	return nil
}

// crashRecovery detects a leftover checkpoint from a commit that never
// finished and replays it. It is safe to run more than once against the
// same leftover checkpoint, which matters if recovery itself is
// interrupted.
func (f *Factory) crashRecovery() error {
	raw, ok, err := f.backend.Get(backupRecoveryKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var backup backupRecord
	if err := json.Unmarshal(raw, &backup); err != nil {
		return err
	}

	for key, encoded := range backup.OldEntries {
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return err
		}
		if err := f.backend.Set(key, value); err != nil {
			return err
		}
	}
	for _, key := range backup.NonExistentKeys {
		has, err := f.backend.Has(key)
		if err != nil {
			return err
		}
		if has {
			if err := f.backend.Delete(key); err != nil {
				return err
			}
		}
	}
	return f.backend.Delete(backupRecoveryKey)
}
