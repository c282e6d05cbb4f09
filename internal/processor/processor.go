package processor

import (
	"context"
	"errors"
	"fmt"

	"vasp-offchain.backend/internal/executor"
	"vasp-offchain.backend/internal/payment"
	"vasp-offchain.backend/internal/sharedobject"
	"vasp-offchain.backend/internal/status"
)

// Resubmitter is how the processor, having advanced a payment on its own
// side, hands the resulting follow-up command back to the channel layer to
// be sequenced as a new local command. Kept as an interface (rather than
// importing internal/channel directly) so this package has no dependency
// on the channel/vasp layers above it.
type Resubmitter interface {
	SequenceLocal(cmd *PaymentCommand) error
}

// Context is the per-call context executor.Processor callbacks receive,
// carrying the information specific to payment processing that the
// generic executor has no notion of.
type Context struct {
	Ctx          context.Context
	MyAddress    string
	OtherAddress string
	Store        executor.ObjectStore
	Resubmitter  Resubmitter
}

// PaymentProcessor implements executor.Processor for PaymentCommand,
// grounded on payment_logic.py's PaymentProcessor.
type PaymentProcessor struct {
	business BusinessContext
}

// NewPaymentProcessor builds a processor delegating business decisions to
// business.
func NewPaymentProcessor(business BusinessContext) *PaymentProcessor {
	return &PaymentProcessor{business: business}
}

// Business returns the business context this processor was built with.
func (pp *PaymentProcessor) Business() BusinessContext { return pp.business }

// CheckCommand validates a newly received command before it is sequenced.
// Only fast, local, syntactic checks belong here — no business callouts —
// so that a misbehaving remote peer cannot stall the shared sequence.
func (pp *PaymentProcessor) CheckCommand(rawCtx any, command executor.Command) error {
	pc, ok := command.(*PaymentCommand)
	if !ok {
		return fmt.Errorf("processor: unsupported command type %T", command)
	}
	pctx, ok := rawCtx.(*Context)
	if !ok {
		return fmt.Errorf("processor: missing processing context")
	}

	newPayment, err := pc.Payment()
	if err != nil {
		return err
	}

	parties := map[string]bool{
		newPayment.Sender().Address():   true,
		newPayment.Receiver().Address(): true,
	}
	if len(parties) != 2 {
		return fmt.Errorf("processor: wrong number of parties to payment")
	}
	if !parties[pctx.MyAddress] {
		return fmt.Errorf("processor: payment parties do not include own VASP (%s)", pctx.MyAddress)
	}
	if !parties[pctx.OtherAddress] {
		return fmt.Errorf("processor: payment parties do not include other party (%s)", pctx.OtherAddress)
	}
	if pc.Origin() != "" && !parties[pc.Origin()] {
		return fmt.Errorf("processor: command originates from a party outside this payment")
	}

	// Only the counterparty's own proposals need full validation here;
	// our own commands were already validated when we built them.
	if pc.Origin() == pctx.OtherAddress {
		if len(pc.Dependencies()) == 0 {
			return pp.checkNewPayment(newPayment)
		}
		depVersion := pc.Dependencies()[0]
		depObj, err := pctx.Store.Get(depVersion)
		if err != nil {
			return fmt.Errorf("processor: could not find payment dependency %q: %w", depVersion, err)
		}
		oldPayment, err := payment.FromShared(depObj)
		if err != nil {
			return err
		}
		merged, err := pc.GetObject(pc.NewVersion(), pctx.Store)
		if err != nil {
			return err
		}
		mergedPayment, err := payment.FromShared(merged)
		if err != nil {
			return err
		}
		return pp.checkNewUpdate(oldPayment, mergedPayment)
	}
	return nil
}

func (pp *PaymentProcessor) checkNewPayment(newPayment *payment.PaymentObject) error {
	recipient := pp.business.IsRecipient(newPayment)
	role, otherRole := roleOf(recipient)
	myActor := actorByRole(newPayment, role)
	otherActor := actorByRole(newPayment, otherRole)

	if myActor.Status() != status.None {
		return fmt.Errorf("processor: sender set receiver status or vice versa")
	}
	if otherRole == "receiver" && otherActor.Status() == status.NeedsRecipientSignature {
		return fmt.Errorf("processor: receiver cannot be in %s", status.NeedsRecipientSignature)
	}
	return nil
}

// checkNewUpdate validates a diff that updates an existing payment: our
// own side's fields must be untouched, and the other side's status
// transition must be valid.
func (pp *PaymentProcessor) checkNewUpdate(oldPayment, newPayment *payment.PaymentObject) error {
	recipient := pp.business.IsRecipient(newPayment)
	role, otherRole := roleOf(recipient)

	oldMine := actorByRole(oldPayment, role)
	newMine := actorByRole(newPayment, role)
	if oldMine.Status() != newMine.Status() || !equalMetadata(oldMine.Metadata(), newMine.Metadata()) {
		return fmt.Errorf("processor: cannot change %s information", role)
	}

	myStatus := oldMine.Status()
	oldOther := actorByRole(oldPayment, otherRole).Status()
	newOther := actorByRole(newPayment, otherRole).Status()
	return checkStatus(otherRole, oldOther, newOther, myStatus)
}

func equalMetadata(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ProcessCommand is called once a command's outcome (success or failure)
// is known. On success it advances the resulting payment through whatever
// local business logic still applies, and — if that changed the payment —
// hands a follow-up command to the Resubmitter.
func (pp *PaymentProcessor) ProcessCommand(rawCtx any, command executor.Command, isSuccess bool) {
	pctx, ok := rawCtx.(*Context)
	if !ok || !isSuccess {
		return
	}
	pc, ok := command.(*PaymentCommand)
	if !ok {
		return
	}

	depObj, err := pctx.Store.Get(pc.NewVersion())
	if err != nil {
		return
	}
	current, err := payment.FromShared(depObj)
	if err != nil {
		return
	}

	advanced, err := pp.AdvancePayment(pctx.Ctx, current)
	if err != nil || advanced == nil {
		return
	}
	if !advanced.HasChanged() {
		return
	}
	if pctx.Resubmitter != nil {
		_ = pctx.Resubmitter.SequenceLocal(NewPaymentCommand(advanced))
	}
}

// AdvancePayment runs one round of this VASP's own business logic over
// payment, returning the next version of the payment (possibly unchanged)
// or an error. Grounded on payment_logic.py's payment_process_async,
// expressed synchronously since this implementation has no asyncio
// equivalent to preserve.
func (pp *PaymentProcessor) AdvancePayment(ctx context.Context, p *payment.PaymentObject) (*payment.PaymentObject, error) {
	business := pp.business
	recipient := business.IsRecipient(p)
	role, otherRole := roleOf(recipient)

	myActor := actorByRole(p, role)
	otherActor := actorByRole(p, otherRole)

	oldStatus := myActor.Status()
	current := oldStatus
	otherStatus := otherActor.Status()

	next := p.NewVersion(sharedobject.GenerateVersion())

	if otherStatus == status.Abort {
		current = status.Abort
	}

	// The whole progression below is one business-driven attempt: a
	// BusinessForceAbort raised anywhere in it aborts the payment instead
	// of propagating, exactly like payment_process_async's single
	// try/except around this sequence. Any other error is fatal.
	progressErr := func() error {
		if current == status.None {
			if err := business.CheckAccountExistence(ctx, next); err != nil {
				return err
			}
		}

		if isAwaitingKYC(current) {
			requested, err := business.NextKYCLevelToRequest(ctx, next)
			if err != nil {
				return err
			}
			if requested != status.None {
				current = requested
			}

			toProvide, err := business.NextKYCToProvide(ctx, next)
			if err != nil {
				return err
			}
			if err := provideKYC(ctx, business, next, actorByRole(next, role), toProvide); err != nil {
				return err
			}
		}

		if current != status.ReadyForSettlement && current != status.Settled {
			ready, err := business.ReadyForSettlement(ctx, next)
			if err != nil {
				return err
			}
			if ready {
				current = status.ReadyForSettlement
			}
		}

		// Each side's own lattice passes through one more state after
		// ready_for_settlement before settled: the sender waits to
		// actually hold the receiver's signature, the receiver (who
		// supplies it) moves straight on to signed.
		if current == status.ReadyForSettlement {
			if role == "sender" {
				if _, ok := next.RecipientSignature(); ok {
					current = status.NeedsRecipientSignature
				}
			} else {
				current = status.Signed
			}
		}

		settleEligible := (role == "sender" && current == status.NeedsRecipientSignature) ||
			(role == "receiver" && current == status.Signed)
		if settleEligible {
			settled, err := business.HasSettled(ctx, next)
			if err != nil {
				return err
			}
			if settled {
				current = status.Settled
			}
		}
		return nil
	}()

	if progressErr != nil {
		if !isForceAbort(progressErr) {
			return nil, progressErr
		}
		// We cannot abort once we are past the finality barrier; checkStatus
		// below will catch and reject that case.
		current = status.Abort
	}

	if err := checkStatus(role, oldStatus, current, otherStatus); err != nil {
		return nil, err
	}
	if err := actorByRole(next, role).ChangeStatus(current); err != nil {
		return nil, err
	}
	return next, nil
}

func isAwaitingKYC(s status.Status) bool {
	switch s {
	case status.None, status.NeedsStableID, status.NeedsKYCData, status.NeedsRecipientSignature:
		return true
	default:
		return false
	}
}

func provideKYC(ctx context.Context, business BusinessContext, p *payment.PaymentObject, actor *payment.PaymentActor, levels []status.Status) error {
	want := make(map[status.Status]bool, len(levels))
	for _, l := range levels {
		want[l] = true
	}

	if want[status.NeedsStableID] {
		stableID, err := business.GetStableID(ctx, p)
		if err != nil {
			return err
		}
		if err := actor.AddStableID(stableID); err != nil {
			return err
		}
	}
	if want[status.NeedsKYCData] {
		kyc, signature, certificate, err := business.GetExtendedKYC(ctx, p)
		if err != nil {
			return err
		}
		if err := actor.AddKYCData(kyc, signature, certificate); err != nil {
			return err
		}
	}
	if want[status.NeedsRecipientSignature] {
		signature, err := business.GetRecipientSignature(ctx, p)
		if err != nil {
			return err
		}
		if err := p.AddRecipientSignature(signature); err != nil {
			return err
		}
	}
	return nil
}

func isForceAbort(err error) bool {
	var forceAbort *ForceAbortError
	return errors.As(err, &forceAbort)
}
