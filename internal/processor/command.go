package processor

import (
	"fmt"

	"vasp-offchain.backend/internal/executor"
	"vasp-offchain.backend/internal/payment"
	"vasp-offchain.backend/internal/sharedobject"
)

// PaymentCommand is the one executor.Command this protocol ever sequences:
// a diff against (at most) one existing payment version, producing one
// new version. Grounded on payment_logic.py's PaymentCommand.
type PaymentCommand struct {
	origin  string
	deps    []string
	creates []string
	diff    map[string]any
}

// NewPaymentCommand builds a command proposing p as its new version. If p
// descends from an earlier version, that version becomes this command's
// sole dependency.
func NewPaymentCommand(p *payment.PaymentObject) *PaymentCommand {
	deps := append([]string{}, p.PreviousVersions()...)
	return &PaymentCommand{
		deps:    deps,
		creates: []string{p.Version()},
		diff:    p.GetFullRecord(),
	}
}

// NewPaymentCommandFromWire reconstructs a PaymentCommand from its wire
// representation, as received from a counterparty or read back off disk.
func NewPaymentCommandFromWire(origin string, deps, creates []string, diff map[string]any) *PaymentCommand {
	return &PaymentCommand{origin: origin, deps: deps, creates: creates, diff: diff}
}

// Diff returns the raw diff this command carries, for wire encoding.
func (c *PaymentCommand) Diff() map[string]any { return c.diff }

func (c *PaymentCommand) Origin() string              { return c.origin }
func (c *PaymentCommand) SetOrigin(origin string)      { c.origin = origin }
func (c *PaymentCommand) Dependencies() []string       { return c.deps }
func (c *PaymentCommand) NewObjectVersions() []string  { return c.creates }

// PreviousVersion returns the version this command updates, or "" if it
// creates a brand new payment.
func (c *PaymentCommand) PreviousVersion() string {
	if len(c.deps) == 0 {
		return ""
	}
	return c.deps[0]
}

// NewVersion returns the version number this command creates or updates.
func (c *PaymentCommand) NewVersion() string { return c.creates[0] }

// Payment rebuilds the PaymentObject this command's diff describes,
// standalone, without consulting any dependency. Used to read the parties
// of a command before it has been sequenced.
func (c *PaymentCommand) Payment() (*payment.PaymentObject, error) {
	return payment.CreatePaymentObjectFromRecord(c.diff)
}

// GetObject builds the payment object this command's new version
// describes. With no dependency it is a brand new payment parsed straight
// from the diff; with one dependency it is that payment's next version
// with the diff applied on top.
func (c *PaymentCommand) GetObject(version string, store executor.ObjectStore) (*sharedobject.Object, error) {
	if version != c.NewVersion() {
		return nil, fmt.Errorf("processor: unknown object %q (only know %q)", version, c.NewVersion())
	}

	if len(c.deps) == 0 {
		p, err := payment.CreatePaymentObjectFromRecord(c.diff)
		if err != nil {
			return nil, err
		}
		p.Shared().SetVersion(version)
		return p.Shared(), nil
	}

	if len(c.deps) > 1 {
		return nil, fmt.Errorf("processor: a payment can depend on no more than one other payment")
	}

	depVersion := c.deps[0]
	depObj, err := store.Get(depVersion)
	if err != nil {
		return nil, fmt.Errorf("processor: could not find payment dependency %q: %w", depVersion, err)
	}
	depPayment, err := payment.FromShared(depObj)
	if err != nil {
		return nil, err
	}

	updated := depPayment.NewVersion(version)
	if err := updated.ApplyDiff(c.diff); err != nil {
		return nil, err
	}
	return updated.Shared(), nil
}
