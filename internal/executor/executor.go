// Package executor implements the per-channel protocol executor: it
// places commands proposed by either party of a channel into one common
// sequence, and tracks which shared-object versions are live as
// sequenced commands succeed or fail. Grounded on executor.py.
package executor

import (
	"fmt"

	"vasp-offchain.backend/internal/sharedobject"
)

// Command is the protocol-level unit the executor sequences.
type Command interface {
	Origin() string
	SetOrigin(origin string)
	Dependencies() []string
	NewObjectVersions() []string
	// GetObject builds the shared object for one of this command's new
	// versions, consulting store for any version it depends on.
	GetObject(version string, store ObjectStore) (*sharedobject.Object, error)
}

// ObjectStore is the versioned object table a Command's GetObject
// consults, and the table the executor itself updates as commands are
// sequenced and confirmed.
type ObjectStore interface {
	Has(version string) (bool, error)
	Get(version string) (*sharedobject.Object, error)
	Set(version string, obj *sharedobject.Object) error
	Delete(version string) error
	// Versions returns every version currently held, used for the
	// liveness counts operators query through the admin transport.
	Versions() ([]string, error)
}

// Processor reacts to commands as the executor sequences and confirms
// them — the Go analogue of the reference implementation's
// CommandProcessor. It is decoupled from any concrete channel/VASP type
// so this package has no import-cycle dependency on internal/channel or
// internal/vasp; callers pass whatever context object their Processor
// implementation expects.
type Processor interface {
	CheckCommand(ctx any, command Command) error
	ProcessCommand(ctx any, command Command, isSuccess bool)
}

// Error reports a failure to sequence a command: a missing dependency, a
// processor rejection, or any error the processor's check raised.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errorf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

type commandEntry struct {
	command      Command
	commitStatus *bool
}

// Executor is the per-channel protocol executor.
type Executor struct {
	context   any
	processor Processor
	store     ObjectStore

	myAddress     string
	lastConfirmed int
	sequence      []commandEntry
}

// New builds an Executor. ctx is passed verbatim to the Processor on
// every callback; myAddress is this VASP's own address, used to tell own
// commands (speculative execution) from the peer's (actual execution
// only once already live).
func New(ctx any, processor Processor, store ObjectStore, myAddress string) *Executor {
	return &Executor{
		context:   ctx,
		processor: processor,
		store:     store,
		myAddress: myAddress,
	}
}

// NextSeq returns the next sequence number that would be assigned.
func (e *Executor) NextSeq() int { return len(e.sequence) }

// LastConfirmed returns the highest sequence number confirmed success or
// failure so far.
func (e *Executor) LastConfirmed() int { return e.lastConfirmed }

// CountPotentiallyLive counts object versions a pending command could
// still make live.
func (e *Executor) CountPotentiallyLive() (int, error) {
	return e.countWhere(func(o *sharedobject.Object) bool { return o.PotentiallyLive() })
}

// CountActuallyLive counts object versions a successfully committed
// command has made live.
func (e *Executor) CountActuallyLive() (int, error) {
	return e.countWhere(func(o *sharedobject.Object) bool { return o.ActuallyLive() })
}

func (e *Executor) countWhere(pred func(*sharedobject.Object) bool) (int, error) {
	versions, err := e.store.Versions()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, version := range versions {
		obj, err := e.store.Get(version)
		if err != nil {
			return 0, err
		}
		if pred(obj) {
			count++
		}
	}
	return count, nil
}

func (e *Executor) allTrue(versions []string, pred func(*sharedobject.Object) bool) (bool, error) {
	for _, version := range versions {
		has, err := e.store.Has(version)
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
		obj, err := e.store.Get(version)
		if err != nil {
			return false, err
		}
		if !pred(obj) {
			return false, nil
		}
	}
	return true, nil
}

// SequenceNextCommand places command at the next sequence position,
// provided its dependencies are live (potentially live, if it is our own
// speculative command; actually live, if it originates from the peer).
// doNotSequenceErrors suppresses appending the command to the sequence
// when its checks fail — used for structurally invalid commands that
// should never consume a sequence number.
func (e *Executor) SequenceNextCommand(command Command, doNotSequenceErrors bool) (int, error) {
	dependencies := command.Dependencies()
	own := command.Origin() == e.myAddress

	pred := func(o *sharedobject.Object) bool { return o.ActuallyLive() }
	if own {
		pred = func(o *sharedobject.Object) bool { return o.PotentiallyLive() }
	}

	allGood, err := e.allTrue(dependencies, pred)
	seqErr := err
	if seqErr == nil && !allGood {
		seqErr = errorf("executor: required objects do not exist")
	}
	if seqErr == nil {
		if checkErr := e.processor.CheckCommand(e.context, command); checkErr != nil {
			seqErr = checkErr
			allGood = false
		}
	}
	if seqErr == nil {
		for _, version := range command.NewObjectVersions() {
			obj, buildErr := command.GetObject(version, e.store)
			if buildErr != nil {
				seqErr = buildErr
				allGood = false
				break
			}
			obj.SetPotentiallyLive(true)
			if err := e.store.Set(version, obj); err != nil {
				return 0, err
			}
		}
	}

	pos := -1
	if allGood || !doNotSequenceErrors {
		pos = len(e.sequence)
		e.sequence = append(e.sequence, commandEntry{command: command})
	}

	if seqErr != nil {
		return pos, seqErr
	}
	return pos, nil
}

// SetSuccess marks the command at seqNo as successfully committed: its
// dependencies are retired, its new object versions become actually live,
// and the processor is notified exactly once.
func (e *Executor) SetSuccess(seqNo int) error {
	if seqNo != e.lastConfirmed {
		return errorf("executor: set_success called out of order: expected %d, got %d", e.lastConfirmed, seqNo)
	}
	e.lastConfirmed++

	entry := &e.sequence[seqNo]
	command := entry.command

	for _, version := range command.Dependencies() {
		obj, err := e.store.Get(version)
		if err != nil {
			return err
		}
		obj.SetActuallyLive(false)
		obj.SetPotentiallyLive(false)
		if err := e.store.Set(version, obj); err != nil {
			return err
		}
	}
	for _, version := range command.NewObjectVersions() {
		obj, err := e.store.Get(version)
		if err != nil {
			return err
		}
		obj.SetPotentiallyLive(true)
		obj.SetActuallyLive(true)
		if err := e.store.Set(version, obj); err != nil {
			return err
		}
	}

	if entry.commitStatus == nil {
		success := true
		entry.commitStatus = &success
		e.processor.ProcessCommand(e.context, command, true)
	}
	return nil
}

// SetFail marks the command at seqNo as failed: any object versions it
// would have created are discarded, and the processor is notified exactly
// once.
func (e *Executor) SetFail(seqNo int) error {
	if seqNo != e.lastConfirmed {
		return errorf("executor: set_fail called out of order: expected %d, got %d", e.lastConfirmed, seqNo)
	}
	e.lastConfirmed++

	entry := &e.sequence[seqNo]
	command := entry.command

	for _, version := range command.NewObjectVersions() {
		has, err := e.store.Has(version)
		if err != nil {
			return err
		}
		if has {
			if err := e.store.Delete(version); err != nil {
				return err
			}
		}
	}

	if entry.commitStatus == nil {
		failure := false
		entry.commitStatus = &failure
		e.processor.ProcessCommand(e.context, command, false)
	}
	return nil
}
