// Package processor implements the payment-specific CommandProcessor:
// validating incoming payment diffs, and driving a payment through KYC
// exchange towards settlement by calling out to a BusinessContext.
// Grounded on payment_logic.py and business.py.
package processor

import (
	"context"
	"fmt"

	"vasp-offchain.backend/internal/payment"
	"vasp-offchain.backend/internal/status"
)

// NotAuthorizedError is returned by a BusinessContext when the other VASP
// is not authorized for the operation requested.
type NotAuthorizedError struct{ Reason string }

func (e *NotAuthorizedError) Error() string { return "processor: not authorized: " + e.Reason }

// ValidationFailureError is returned when a business-level check (account
// existence, signature, KYC content) fails.
type ValidationFailureError struct{ Reason string }

func (e *ValidationFailureError) Error() string { return "processor: validation failed: " + e.Reason }

// ForceAbortError signals the business layer wants this payment aborted.
// It is only honored before the payment has crossed the finality barrier
// (status.ReadyForSettlement); past that point checkStatus rejects the
// resulting transition instead.
type ForceAbortError struct{ Reason string }

func (e *ForceAbortError) Error() string { return "processor: forced abort: " + e.Reason }

// BusinessContext is the interface a VASP implements to drive the
// off-chain protocol's business decisions. Every method may return one of
// the error types above; any other error is treated as a fatal failure of
// the calling command.
type BusinessContext interface {
	// IsRecipient reports whether this VASP is the receiver of payment.
	IsRecipient(p *payment.PaymentObject) bool

	// CheckAccountExistence verifies the local actor's sub-account exists.
	CheckAccountExistence(ctx context.Context, p *payment.PaymentObject) error

	// ValidateRecipientSignature checks a recipient_signature already
	// present on the payment, if any VASP on this side requires one.
	ValidateRecipientSignature(ctx context.Context, p *payment.PaymentObject) error

	// NextKYCToProvide returns which KYC levels this VASP should attach
	// next (status.NeedsStableID / status.NeedsKYCData /
	// status.NeedsRecipientSignature), possibly none.
	NextKYCToProvide(ctx context.Context, p *payment.PaymentObject) ([]status.Status, error)

	// NextKYCLevelToRequest returns the status this VASP wants to move
	// itself to request more information from the other side, or
	// status.None if nothing further is needed right now.
	NextKYCLevelToRequest(ctx context.Context, p *payment.PaymentObject) (status.Status, error)

	GetStableID(ctx context.Context, p *payment.PaymentObject) (string, error)
	GetExtendedKYC(ctx context.Context, p *payment.PaymentObject) (*payment.KYCData, string, string, error)
	GetRecipientSignature(ctx context.Context, p *payment.PaymentObject) (string, error)

	// ReadyForSettlement is the finality barrier: once it returns true for
	// a payment it must never return false for that payment again.
	ReadyForSettlement(ctx context.Context, p *payment.PaymentObject) (bool, error)

	// HasSettled reports whether funds have actually moved.
	HasSettled(ctx context.Context, p *payment.PaymentObject) (bool, error)
}

func roleOf(recipient bool) (role, other string) {
	if recipient {
		return "receiver", "sender"
	}
	return "sender", "receiver"
}

func actorByRole(p *payment.PaymentObject, role string) *payment.PaymentActor {
	if role == "sender" {
		return p.Sender()
	}
	return p.Receiver()
}

// checkStatus validates a proposed status transition for role against the
// joint sender/receiver lattice in package status: otherStatus is held
// fixed (only one side moves across a single diff or AdvancePayment
// round, though that round may fold several of role's own lattice steps
// together) and the move from oldStatus to newStatus must be reachable
// in status.PaymentStatusProcess. That carries everything a hand-rolled
// check would otherwise have to reimplement — per-actor progression, the
// settled dependency on the other side's status, and the finality
// barrier on a late unilateral abort — so there is nothing left here to
// drift out of sync with it.
func checkStatus(role string, oldStatus, newStatus, otherStatus status.Status) error {
	if role == "receiver" && newStatus == status.NeedsRecipientSignature {
		return fmt.Errorf("processor: receiver cannot be in %s", status.NeedsRecipientSignature)
	}

	var from, to status.JointState
	if role == "sender" {
		from = status.JointState{Sender: oldStatus, Receiver: otherStatus}
		to = status.JointState{Sender: newStatus, Receiver: otherStatus}
	} else {
		from = status.JointState{Sender: otherStatus, Receiver: oldStatus}
		to = status.JointState{Sender: otherStatus, Receiver: newStatus}
	}

	if !status.CanAdvance(from, to) {
		return fmt.Errorf("processor: invalid transition for %s: %s -> %s (other: %s)", role, oldStatus, newStatus, otherStatus)
	}
	return nil
}
