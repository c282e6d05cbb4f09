// Package payment implements the payment object and its nested KYC,
// actor and action records exchanged over an off-chain channel, grounded
// on the reference implementation's payment.py. Every field is backed by
// internal/record so validity, write-once enforcement and diff tracking
// come for free, and every PaymentObject is versioned through
// internal/sharedobject the same way the reference PaymentObject mixes in
// both SharedObject and StructureChecker.
package payment

import (
	"encoding/json"
	"fmt"

	"vasp-offchain.backend/internal/record"
	"vasp-offchain.backend/internal/sharedobject"
	"vasp-offchain.backend/internal/status"
)

func validateString(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	return nil
}

func validateStringSlice(v any) error {
	if _, ok := v.([]string); !ok {
		return fmt.Errorf("expected []string, got %T", v)
	}
	return nil
}

func validatePositiveInt(v any) error {
	amount, ok := v.(int64)
	if !ok {
		return fmt.Errorf("expected int64, got %T", v)
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// --- KYCData -----------------------------------------------------------

var kycFields = []record.FieldDescriptor{
	{Name: "blob", Required: record.Required, WriteMode: record.WriteOnce, Validate: validateString},
}

func kycCustomChecks(diff map[string]any) error {
	raw, ok := diff["blob"]
	if !ok {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw.(string)), &parsed); err != nil {
		return fmt.Errorf("payment: kyc_data blob is not valid JSON: %w", err)
	}
	if _, ok := parsed["payment_reference_id"]; !ok {
		return fmt.Errorf("payment: kyc_data blob missing field payment_reference_id")
	}
	if _, ok := parsed["type"]; !ok {
		return fmt.Errorf("payment: kyc_data blob missing field type")
	}
	return nil
}

func newKYCDataRecord() *record.Record {
	return record.New(kycFields, kycCustomChecks)
}

// KYCData wraps an opaque, signed KYC JSON blob. It is kept as a blob
// rather than parsed fields because it must be signed and verified as a
// byte string.
type KYCData struct {
	rec *record.Record
}

// NewKYCData validates kycJSONBlob as JSON carrying at least
// payment_reference_id and type, and wraps it.
func NewKYCData(kycJSONBlob string) (*KYCData, error) {
	rec := newKYCDataRecord()
	if err := rec.Update(map[string]any{"blob": kycJSONBlob}); err != nil {
		return nil, err
	}
	return &KYCData{rec: rec}, nil
}

// Blob returns the raw KYC JSON blob.
func (k *KYCData) Blob() string {
	v, _ := k.rec.Get("blob")
	return v.(string)
}

// --- PaymentActor --------------------------------------------------------

var actorFields = []record.FieldDescriptor{
	{Name: "address", Required: record.Required, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "subaddress", Required: record.Required, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "stable_id", Required: record.Optional, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "kyc_data", Required: record.Optional, WriteMode: record.WriteOnce, Nested: newKYCDataRecord},
	{Name: "kyc_signature", Required: record.Optional, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "kyc_certificate", Required: record.Optional, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "status", Required: record.Required, WriteMode: record.Updatable, Validate: validateStatus},
	{Name: "metadata", Required: record.Required, WriteMode: record.Updatable, Validate: validateStringSlice},
}

func validateStatus(v any) error {
	s, ok := v.(status.Status)
	if !ok {
		return fmt.Errorf("expected status.Status, got %T", v)
	}
	switch s {
	case status.None, status.MaybeNeedsKYC, status.NeedsStableID, status.NeedsKYCData,
		status.ReadyForSettlement, status.NeedsRecipientSignature, status.Signed,
		status.Settled, status.Abort:
		return nil
	default:
		return fmt.Errorf("unsupported status %q", s)
	}
}

func actorCustomChecks(diff map[string]any) error {
	_, hasData := diff["kyc_data"]
	_, hasSig := diff["kyc_signature"]
	_, hasCert := diff["kyc_certificate"]

	// KYC data, signature and certificate must be supplied together: any
	// one present without the other two is rejected.
	if (hasData && (!hasSig || !hasCert)) ||
		(hasSig && (!hasData || !hasCert)) ||
		(hasCert && (!hasData || !hasSig)) {
		return fmt.Errorf("payment: kyc_data, kyc_signature and kyc_certificate must be set together")
	}
	return nil
}

func newPaymentActorRecord() *record.Record {
	return record.New(actorFields, actorCustomChecks)
}

// PaymentActor is one side (sender or receiver) of a payment.
type PaymentActor struct {
	rec *record.Record
}

// NewPaymentActor builds an actor identified by its encoded address and
// sub-address, starting at the given status with no metadata beyond what
// is supplied.
func NewPaymentActor(address, subaddress string, initialStatus status.Status, metadata []string) (*PaymentActor, error) {
	rec := newPaymentActorRecord()
	if metadata == nil {
		metadata = []string{}
	}
	if err := rec.Update(map[string]any{
		"address":    address,
		"subaddress": subaddress,
		"status":     initialStatus,
		"metadata":   metadata,
	}); err != nil {
		return nil, err
	}
	return &PaymentActor{rec: rec}, nil
}

func (a *PaymentActor) Address() string {
	v, _ := a.rec.Get("address")
	return v.(string)
}

func (a *PaymentActor) Subaddress() string {
	v, _ := a.rec.Get("subaddress")
	return v.(string)
}

func (a *PaymentActor) Status() status.Status {
	v, _ := a.rec.Get("status")
	return v.(status.Status)
}

func (a *PaymentActor) Metadata() []string {
	v, _ := a.rec.Get("metadata")
	return v.([]string)
}

func (a *PaymentActor) StableID() (string, bool) {
	v, ok := a.rec.Get("stable_id")
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (a *PaymentActor) KYCData() (*KYCData, bool) {
	v, ok := a.rec.Get("kyc_data")
	if !ok {
		return nil, false
	}
	return &KYCData{rec: v.(*record.Record)}, true
}

func (a *PaymentActor) KYCSignature() (string, bool) {
	v, ok := a.rec.Get("kyc_signature")
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (a *PaymentActor) KYCCertificate() (string, bool) {
	v, ok := a.rec.Get("kyc_certificate")
	if !ok {
		return "", false
	}
	return v.(string), true
}

// AddKYCData attaches extended KYC information, signature and certificate.
// All three must be supplied together and, being write-once, can each only
// be set a single time.
func (a *PaymentActor) AddKYCData(kycData *KYCData, signature, certificate string) error {
	return a.rec.Update(map[string]any{
		"kyc_data":        kycData.rec,
		"kyc_signature":   signature,
		"kyc_certificate": certificate,
	})
}

// AddMetadata appends one item to the actor's metadata list.
func (a *PaymentActor) AddMetadata(item string) error {
	return a.rec.Update(map[string]any{
		"metadata": append(append([]string{}, a.Metadata()...), item),
	})
}

// ChangeStatus updates this actor's reported payment status.
func (a *PaymentActor) ChangeStatus(s status.Status) error {
	return a.rec.Update(map[string]any{"status": s})
}

// AddStableID sets the actor's stable account identifier.
func (a *PaymentActor) AddStableID(stableID string) error {
	return a.rec.Update(map[string]any{"stable_id": stableID})
}

// --- PaymentAction -------------------------------------------------------

var actionFields = []record.FieldDescriptor{
	{Name: "amount", Required: record.Required, WriteMode: record.WriteOnce, Validate: validatePositiveInt},
	{Name: "currency", Required: record.Required, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "action", Required: record.Required, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "timestamp", Required: record.Required, WriteMode: record.WriteOnce, Validate: validateString},
}

func newPaymentActionRecord() *record.Record {
	return record.New(actionFields, nil)
}

// PaymentAction describes what is being paid: an amount of a currency,
// under a named action (e.g. "charge"), at a timestamp.
type PaymentAction struct {
	rec *record.Record
}

// NewPaymentAction builds a PaymentAction. amount is a positive integer
// minor-unit amount (spec.md defines amount as an integer, not a decimal).
func NewPaymentAction(amount int64, currency, action, timestamp string) (*PaymentAction, error) {
	rec := newPaymentActionRecord()
	if err := rec.Update(map[string]any{
		"amount":    amount,
		"currency":  currency,
		"action":    action,
		"timestamp": timestamp,
	}); err != nil {
		return nil, err
	}
	return &PaymentAction{rec: rec}, nil
}

func (a *PaymentAction) Amount() int64 {
	v, _ := a.rec.Get("amount")
	return v.(int64)
}

func (a *PaymentAction) Currency() string {
	v, _ := a.rec.Get("currency")
	return v.(string)
}

func (a *PaymentAction) Action() string {
	v, _ := a.rec.Get("action")
	return v.(string)
}

func (a *PaymentAction) Timestamp() string {
	v, _ := a.rec.Get("timestamp")
	return v.(string)
}

// --- PaymentObject ---------------------------------------------------

var objectFields = []record.FieldDescriptor{
	{Name: "sender", Required: record.Required, WriteMode: record.WriteOnce, Nested: newPaymentActorRecord},
	{Name: "receiver", Required: record.Required, WriteMode: record.WriteOnce, Nested: newPaymentActorRecord},
	{Name: "reference_id", Required: record.Required, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "original_payment_reference_id", Required: record.Optional, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "description", Required: record.Optional, WriteMode: record.WriteOnce, Validate: validateString},
	{Name: "action", Required: record.Required, WriteMode: record.WriteOnce, Nested: newPaymentActionRecord},
	{Name: "recipient_signature", Required: record.Optional, WriteMode: record.WriteOnce, Validate: validateString},
}

func newPaymentObjectRecord() *record.Record {
	return record.New(objectFields, nil)
}

// recordPayload adapts *record.Record to sharedobject.Payload, bridging
// the generic record package and the generic sharedobject package without
// either depending on the other.
type recordPayload struct {
	rec *record.Record
}

func (p *recordPayload) Clone() sharedobject.Payload {
	return &recordPayload{rec: p.rec.Clone()}
}

// PaymentObject is the versioned, structured payment record exchanged
// between two VASPs over a channel.
type PaymentObject struct {
	shared *sharedobject.Object
}

// NewPaymentObject builds the initial version of a payment, identified by
// reference_id. originalPaymentReferenceID and description are optional;
// pass "" to omit.
func NewPaymentObject(sender, receiver *PaymentActor, referenceID, originalPaymentReferenceID, description string, action *PaymentAction) (*PaymentObject, error) {
	rec := newPaymentObjectRecord()
	diff := map[string]any{
		"sender":       sender.rec,
		"receiver":     receiver.rec,
		"reference_id": referenceID,
		"action":       action.rec,
	}
	if originalPaymentReferenceID != "" {
		diff["original_payment_reference_id"] = originalPaymentReferenceID
	}
	if description != "" {
		diff["description"] = description
	}
	if err := rec.Update(diff); err != nil {
		return nil, err
	}
	return &PaymentObject{shared: sharedobject.New(&recordPayload{rec: rec}, "")}, nil
}

func (p *PaymentObject) record() *record.Record {
	return p.shared.Payload().(*recordPayload).rec
}

// Shared exposes the underlying versioned object, for code (such as the
// command processor) that must hand it to an executor.ObjectStore.
func (p *PaymentObject) Shared() *sharedobject.Object {
	return p.shared
}

// FromShared wraps an existing sharedobject.Object whose payload is a
// payment record, the Go analogue of reading a PaymentObject back out of
// the executor's object store.
func FromShared(obj *sharedobject.Object) (*PaymentObject, error) {
	if _, ok := obj.Payload().(*recordPayload); !ok {
		return nil, fmt.Errorf("payment: shared object does not carry a payment record")
	}
	return &PaymentObject{shared: obj}, nil
}

// ApplyDiff applies a full record diff on top of this payment's current
// record, in place — updating nested actor/action records rather than
// replacing them so their write-once fields stay enforced.
func (p *PaymentObject) ApplyDiff(diff map[string]any) error {
	return p.record().FromFullRecord(diff)
}

func (p *PaymentObject) Version() string           { return p.shared.Version() }
func (p *PaymentObject) PreviousVersions() []string { return p.shared.PreviousVersions() }
func (p *PaymentObject) PotentiallyLive() bool      { return p.shared.PotentiallyLive() }
func (p *PaymentObject) SetPotentiallyLive(flag bool) { p.shared.SetPotentiallyLive(flag) }
func (p *PaymentObject) ActuallyLive() bool           { return p.shared.ActuallyLive() }
func (p *PaymentObject) SetActuallyLive(flag bool)    { p.shared.SetActuallyLive(flag) }

// NewVersion clones the payment into a new version descended from this
// one, and — matching the reference implementation's PaymentObject.new_version
// — flattens the clone's change history so it starts with a clean diff
// record.
func (p *PaymentObject) NewVersion(newVersion string) *PaymentObject {
	clone := p.shared.NewVersion(newVersion)
	clone.Payload().(*recordPayload).rec.Flatten()
	return &PaymentObject{shared: clone}
}

func (p *PaymentObject) Sender() *PaymentActor {
	v, _ := p.record().Get("sender")
	return &PaymentActor{rec: v.(*record.Record)}
}

func (p *PaymentObject) Receiver() *PaymentActor {
	v, _ := p.record().Get("receiver")
	return &PaymentActor{rec: v.(*record.Record)}
}

func (p *PaymentObject) ReferenceID() string {
	v, _ := p.record().Get("reference_id")
	return v.(string)
}

func (p *PaymentObject) OriginalPaymentReferenceID() (string, bool) {
	v, ok := p.record().Get("original_payment_reference_id")
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (p *PaymentObject) Description() (string, bool) {
	v, ok := p.record().Get("description")
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (p *PaymentObject) Action() *PaymentAction {
	v, _ := p.record().Get("action")
	return &PaymentAction{rec: v.(*record.Record)}
}

func (p *PaymentObject) RecipientSignature() (string, bool) {
	v, ok := p.record().Get("recipient_signature")
	if !ok {
		return "", false
	}
	return v.(string), true
}

// AddRecipientSignature records the receiver's signature over the
// finalized payment terms. Write-once: it can be set only once.
func (p *PaymentObject) AddRecipientSignature(signature string) error {
	return p.record().Update(map[string]any{"recipient_signature": signature})
}

// JointStatus returns the current (sender, receiver) status pair, used to
// validate transitions against internal/status's payment lattice.
func (p *PaymentObject) JointStatus() status.JointState {
	return status.JointState{Sender: p.Sender().Status(), Receiver: p.Receiver().Status()}
}

// GetFullRecord returns the full wire-serializable diff of the payment,
// suitable for FromFullRecord or persistence.
func (p *PaymentObject) GetFullRecord() map[string]any {
	return p.record().GetFullRecord()
}

// HasChanged reports whether this payment, or any nested actor/action
// record, has unflattened recorded diffs.
func (p *PaymentObject) HasChanged() bool {
	return p.record().HasChanged()
}

// WhatChanged returns every recorded diff on this payment since the last
// flatten.
func (p *PaymentObject) WhatChanged() []record.Change {
	return p.record().WhatChanged()
}

// CreatePaymentObjectFromRecord rebuilds a PaymentObject from a full wire
// record diff (e.g. received from a peer), the Go analogue of the
// reference implementation's PaymentObject.create_from_record.
func CreatePaymentObjectFromRecord(diff map[string]any) (*PaymentObject, error) {
	rec := newPaymentObjectRecord()
	if err := rec.FromFullRecord(diff); err != nil {
		return nil, err
	}
	return &PaymentObject{shared: sharedobject.New(&recordPayload{rec: rec}, "")}, nil
}
