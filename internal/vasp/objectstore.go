package vasp

import (
	"fmt"

	"vasp-offchain.backend/internal/payment"
	"vasp-offchain.backend/internal/sharedobject"
	"vasp-offchain.backend/internal/storage"
)

// storedObject is the on-disk shape of a sharedobject.Object wrapping a
// payment: the version bookkeeping the executor relies on, plus the
// payment's own full record, round-tripped through
// PaymentObject.GetFullRecord/CreatePaymentObjectFromRecord.
type storedObject struct {
	PreviousVersions []string       `json:"previous_versions"`
	PotentiallyLive  bool           `json:"potentially_live"`
	ActuallyLive     bool           `json:"actually_live"`
	Record           map[string]any `json:"record"`
}

// PaymentObjectStore persists payment shared objects in a storage.Dict,
// implementing executor.ObjectStore. One instance backs one channel's
// object table, grounded on storage.py's LRUCache-backed object store
// sitting on top of the same crash-recoverable key-value layer as every
// other piece of persisted protocol state.
type PaymentObjectStore struct {
	factory *storage.Factory
	dict    *storage.Dict[storedObject]
}

// NewPaymentObjectStore builds a store rooted at base within f.
func NewPaymentObjectStore(f *storage.Factory, base string) *PaymentObjectStore {
	return &PaymentObjectStore{
		factory: f,
		dict:    storage.NewDict[storedObject](f, base, storage.JSONCodec[storedObject]()),
	}
}

func (s *PaymentObjectStore) Has(version string) (bool, error) {
	return s.dict.Has(version)
}

func (s *PaymentObjectStore) Get(version string) (*sharedobject.Object, error) {
	stored, err := s.dict.Get(version)
	if err != nil {
		return nil, err
	}
	p, err := payment.CreatePaymentObjectFromRecord(stored.Record)
	if err != nil {
		return nil, fmt.Errorf("vasp: decoding stored payment %q: %w", version, err)
	}
	obj := p.Shared()
	obj.SetVersion(version)
	obj.SetPreviousVersions(stored.PreviousVersions)
	obj.SetPotentiallyLive(stored.PotentiallyLive)
	obj.SetActuallyLive(stored.ActuallyLive)
	return obj, nil
}

func (s *PaymentObjectStore) Set(version string, obj *sharedobject.Object) error {
	p, err := payment.FromShared(obj)
	if err != nil {
		return err
	}
	stored := storedObject{
		PreviousVersions: obj.PreviousVersions(),
		PotentiallyLive:  obj.PotentiallyLive(),
		ActuallyLive:     obj.ActuallyLive(),
		Record:           p.GetFullRecord(),
	}
	return s.factory.Atomic(func() error {
		return s.dict.Set(version, stored)
	})
}

func (s *PaymentObjectStore) Delete(version string) error {
	return s.factory.Atomic(func() error {
		return s.dict.Delete(version)
	})
}

func (s *PaymentObjectStore) Versions() ([]string, error) {
	return s.dict.Keys()
}
