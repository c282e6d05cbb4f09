// Package defaultbusiness is a reference BusinessContext: it trusts
// whatever KYC data a peer attaches, verifies compliance signatures with
// Ed25519, and settles a payment as soon as both sides have signed off.
// Grounded on business.py's VASPInfo/BusinessContext contract, the way the
// reference implementation's tests exercise protocol.py against a minimal
// concrete business.
package defaultbusiness

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"vasp-offchain.backend/internal/payment"
	"vasp-offchain.backend/internal/processor"
	"vasp-offchain.backend/internal/status"
	"vasp-offchain.backend/pkg/cryptoutil"
)

// AccountExistenceChecker reports whether a sub-account hosted by this
// VASP exists. Injected so callers can back it with their own ledger.
type AccountExistenceChecker func(ctx context.Context, subaddress string) (bool, error)

// SettlementChecker reports whether funds for a payment have moved on
// whatever rail actually settles it.
type SettlementChecker func(ctx context.Context, referenceID string) (bool, error)

// Context carries the signing key this VASP uses for its own compliance
// signatures, and the key it expects from its counterparty.
type Context struct {
	MyAddress       string
	SigningKey      ed25519.PrivateKey
	PeerComplianceKey ed25519.PublicKey

	CheckAccount  AccountExistenceChecker
	CheckSettled  SettlementChecker
}

// BusinessContext is the reference processor.BusinessContext
// implementation: it requests and provides KYC data unconditionally, and
// is ready for settlement as soon as both a stable ID and KYC data (or a
// valid recipient signature, for the receiver) are present.
type BusinessContext struct {
	ctx Context
}

// New builds a BusinessContext. ctx.CheckAccount and ctx.CheckSettled may
// be nil, in which case accounts are always considered to exist and
// settlement never completes on its own (the caller settles and flips a
// payment to Settled out of band).
func New(ctx Context) *BusinessContext {
	return &BusinessContext{ctx: ctx}
}

func (b *BusinessContext) IsRecipient(p *payment.PaymentObject) bool {
	return p.Receiver().Address() == b.ctx.MyAddress
}

func (b *BusinessContext) CheckAccountExistence(ctx context.Context, p *payment.PaymentObject) error {
	if b.ctx.CheckAccount == nil {
		return nil
	}
	actor := b.myActor(p)
	exists, err := b.ctx.CheckAccount(ctx, actor.Subaddress())
	if err != nil {
		return err
	}
	if !exists {
		return &processor.ValidationFailureError{Reason: fmt.Sprintf("sub-account %q does not exist", actor.Subaddress())}
	}
	return nil
}

func (b *BusinessContext) ValidateRecipientSignature(ctx context.Context, p *payment.PaymentObject) error {
	sig, ok := p.RecipientSignature()
	if !ok {
		return &processor.ValidationFailureError{Reason: "no recipient signature present"}
	}
	if b.ctx.PeerComplianceKey == nil {
		return nil
	}
	if !cryptoutil.Verify(b.ctx.PeerComplianceKey, []byte(p.ReferenceID()), sig) {
		return &processor.ValidationFailureError{Reason: "recipient signature does not verify"}
	}
	return nil
}

// NextKYCToProvide always offers stable ID and full KYC data once
// requested, plus a recipient signature once the receiver is signing off.
func (b *BusinessContext) NextKYCToProvide(ctx context.Context, p *payment.PaymentObject) ([]status.Status, error) {
	actor := b.myActor(p)
	var levels []status.Status
	if _, ok := actor.StableID(); !ok {
		levels = append(levels, status.NeedsStableID)
	}
	if _, ok := actor.KYCData(); !ok {
		levels = append(levels, status.NeedsKYCData)
	}
	if b.IsRecipient(p) {
		if _, ok := p.RecipientSignature(); !ok {
			levels = append(levels, status.NeedsRecipientSignature)
		}
	}
	return levels, nil
}

// NextKYCLevelToRequest asks for a stable ID, then KYC data, from the
// counterparty, in that order, and nothing more once both are present.
func (b *BusinessContext) NextKYCLevelToRequest(ctx context.Context, p *payment.PaymentObject) (status.Status, error) {
	other := b.otherActor(p)
	if _, ok := other.StableID(); !ok {
		return status.NeedsStableID, nil
	}
	if _, ok := other.KYCData(); !ok {
		return status.NeedsKYCData, nil
	}
	return status.None, nil
}

func (b *BusinessContext) GetStableID(ctx context.Context, p *payment.PaymentObject) (string, error) {
	return fmt.Sprintf("stable-%s", p.ReferenceID()), nil
}

func (b *BusinessContext) GetExtendedKYC(ctx context.Context, p *payment.PaymentObject) (*payment.KYCData, string, string, error) {
	blob, err := json.Marshal(map[string]string{
		"payment_reference_id": p.ReferenceID(),
		"type":                 "individual",
	})
	if err != nil {
		return nil, "", "", err
	}
	kyc, err := payment.NewKYCData(string(blob))
	if err != nil {
		return nil, "", "", err
	}
	signature := b.sign(p.ReferenceID())
	certificate := "none"
	return kyc, signature, certificate, nil
}

func (b *BusinessContext) GetRecipientSignature(ctx context.Context, p *payment.PaymentObject) (string, error) {
	return b.sign(p.ReferenceID()), nil
}

// ReadyForSettlement is satisfied once this VASP's own actor carries a
// stable ID and KYC data, and — if we are the sender — the receiver has
// supplied a recipient signature.
func (b *BusinessContext) ReadyForSettlement(ctx context.Context, p *payment.PaymentObject) (bool, error) {
	actor := b.myActor(p)
	if _, ok := actor.StableID(); !ok {
		return false, nil
	}
	if _, ok := actor.KYCData(); !ok {
		return false, nil
	}
	if !b.IsRecipient(p) {
		if _, ok := p.RecipientSignature(); !ok {
			return false, nil
		}
	}
	return true, nil
}

func (b *BusinessContext) HasSettled(ctx context.Context, p *payment.PaymentObject) (bool, error) {
	if b.ctx.CheckSettled == nil {
		return false, nil
	}
	return b.ctx.CheckSettled(ctx, p.ReferenceID())
}

func (b *BusinessContext) myActor(p *payment.PaymentObject) *payment.PaymentActor {
	if b.IsRecipient(p) {
		return p.Receiver()
	}
	return p.Sender()
}

func (b *BusinessContext) otherActor(p *payment.PaymentObject) *payment.PaymentActor {
	if b.IsRecipient(p) {
		return p.Sender()
	}
	return p.Receiver()
}

func (b *BusinessContext) sign(referenceID string) string {
	if b.ctx.SigningKey == nil {
		return ""
	}
	return cryptoutil.Sign(b.ctx.SigningKey, []byte(referenceID))
}
