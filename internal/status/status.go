// Package status builds the joint payment status lattice from two
// independent per-actor graphs, the way the reference implementation
// composes sender and receiver progress into a single validator instead of
// hand-enumerating every joint transition. The composed lattice is
// precomputed once at package init into a set lookup.
package status

// Status is one of the nine payment status values a sender or receiver
// actor can report.
type Status string

const (
	None                    Status = "none"
	MaybeNeedsKYC           Status = "maybe_needs_kyc" // sender only
	NeedsStableID           Status = "needs_stable_id"
	NeedsKYCData            Status = "needs_kyc_data"
	ReadyForSettlement      Status = "ready_for_settlement"
	NeedsRecipientSignature Status = "needs_recipient_signature" // sender only
	Signed                  Status = "signed"                    // receiver only
	Settled                 Status = "settled"
	Abort                   Status = "abort"
)

// Transition is one edge of a single actor's status graph.
type Transition struct {
	From Status
	To   Status
}

// JointState is the pair of statuses (sender, receiver) describing a
// payment's overall progress.
type JointState struct {
	Sender   Status
	Receiver Status
}

// JointTransition is one edge of the composed sender/receiver lattice.
type JointTransition struct {
	From JointState
	To   JointState
}

// dependency says: once one side reaches Post, the other side must
// already be in one of Pre.
type dependency struct {
	Post Status
	Pre  map[Status]bool
}

var senderLattice = []Transition{
	{None, MaybeNeedsKYC},
	{MaybeNeedsKYC, NeedsStableID},
	{NeedsStableID, NeedsKYCData},
	{NeedsKYCData, ReadyForSettlement},
	{NeedsKYCData, Abort}, // branch and terminal
	{ReadyForSettlement, NeedsRecipientSignature},
	{NeedsRecipientSignature, Settled}, // terminal
}

var receiverLattice = []Transition{
	{None, NeedsStableID},
	{NeedsStableID, NeedsKYCData},
	{NeedsKYCData, ReadyForSettlement},
	{NeedsKYCData, Abort}, // branch and terminal
	{ReadyForSettlement, Signed},
	{Signed, Settled}, // terminal
}

var dependencies = []dependency{
	{Post: Settled, Pre: map[Status]bool{Settled: true, Signed: true}},
}

var startingStates = []JointState{{Sender: None, Receiver: None}}

// addSelfLoops adds a transition from every state to itself, so a status
// report that repeats the current state is always a valid (no-op) move.
func addSelfLoops(lattice []Transition) map[Transition]struct{} {
	out := make(map[Transition]struct{}, len(lattice)*2)
	for _, t := range lattice {
		out[t] = struct{}{}
		out[Transition{From: t.From, To: t.From}] = struct{}{}
		out[Transition{From: t.To, To: t.To}] = struct{}{}
	}
	return out
}

// crossProduct composes two independent per-actor graphs into the process
// of running them concurrently: every pair of edges becomes one joint edge.
func crossProduct(l0, l1 map[Transition]struct{}) map[JointTransition]struct{} {
	out := make(map[JointTransition]struct{}, len(l0)*len(l1))
	for t0 := range l0 {
		for t1 := range l1 {
			out[JointTransition{
				From: JointState{Sender: t0.From, Receiver: t1.From},
				To:   JointState{Sender: t0.To, Receiver: t1.To},
			}] = struct{}{}
		}
	}
	return out
}

// addAborts adds, for every joint state where either side has reached
// Abort, a self-loop on the fully-aborted state — once one side aborts the
// whole payment is considered aborted.
func addAborts(joint map[JointTransition]struct{}) map[JointTransition]struct{} {
	out := make(map[JointTransition]struct{}, len(joint))
	for t := range joint {
		out[t] = struct{}{}
	}
	for t := range joint {
		if t.To.Sender == Abort || t.To.Receiver == Abort {
			aborted := JointState{Sender: Abort, Receiver: Abort}
			out[JointTransition{From: t.To, To: aborted}] = struct{}{}
		}
	}
	return out
}

// keepOneStep restricts the joint lattice to transitions where at most one
// side actually moves — the two actors never update simultaneously.
func keepOneStep(joint map[JointTransition]struct{}) map[JointTransition]struct{} {
	out := make(map[JointTransition]struct{}, len(joint))
	for t := range joint {
		if t.From.Sender == t.To.Sender || t.From.Receiver == t.To.Receiver {
			out[t] = struct{}{}
		}
	}
	return out
}

// filterForDependencies removes joint transitions that would let one side
// reach a dependency's post-state while the other side is not yet in one
// of the required pre-states.
func filterForDependencies(joint map[JointTransition]struct{}, deps []dependency) map[JointTransition]struct{} {
	out := make(map[JointTransition]struct{}, len(joint))
	for t := range joint {
		out[t] = struct{}{}
	}
	for _, dep := range deps {
		for t := range out {
			if t.To.Sender == dep.Post && !dep.Pre[t.From.Receiver] {
				delete(out, t)
			} else if t.To.Receiver == dep.Post && !dep.Pre[t.From.Sender] {
				delete(out, t)
			}
		}
	}
	return out
}

// filterForStartingStates keeps only the transitions reachable from the
// given starting joint states, by breadth-first exploration of the
// lattice's forward adjacency.
func filterForStartingStates(joint map[JointTransition]struct{}, starts []JointState) map[JointTransition]struct{} {
	adjacency := make(map[JointState][]JointState)
	for t := range joint {
		adjacency[t.From] = append(adjacency[t.From], t.To)
	}

	reachable := make(map[JointState]struct{})
	toExplore := make([]JointState, 0, len(starts))
	toExplore = append(toExplore, starts...)
	for len(toExplore) > 0 {
		next := toExplore[len(toExplore)-1]
		toExplore = toExplore[:len(toExplore)-1]
		if _, seen := reachable[next]; seen {
			continue
		}
		reachable[next] = struct{}{}
		toExplore = append(toExplore, adjacency[next]...)
	}

	out := make(map[JointTransition]struct{})
	for t := range joint {
		if _, ok := reachable[t.From]; ok {
			out[t] = struct{}{}
		}
	}
	return out
}

// extractEndStates returns every state that appears as the target of some
// transition in the lattice.
func extractEndStates(lattice map[JointTransition]struct{}) map[JointState]struct{} {
	out := make(map[JointState]struct{})
	for t := range lattice {
		out[t.To] = struct{}{}
	}
	return out
}

func makePaymentStatusLattice() map[JointTransition]struct{} {
	ls := addSelfLoops(senderLattice)
	lr := addSelfLoops(receiverLattice)
	joint := crossProduct(ls, lr)
	joint = addAborts(joint)
	joint = keepOneStep(joint)
	joint = filterForDependencies(joint, dependencies)
	joint = filterForStartingStates(joint, startingStates)
	return joint
}

// PaymentStatusProcess is the precomputed set of every valid joint status
// transition for the payment protocol, built once at package init exactly
// as the reference implementation's module-level payment_status_process.
var PaymentStatusProcess = makePaymentStatusLattice()

// TerminalStates is every joint state from which the process never moves
// on again (settled or fully aborted).
var TerminalStates = extractEndStates(PaymentStatusProcess)

// IsValidTransition reports whether moving from one joint state to another
// is permitted by the payment status process.
func IsValidTransition(from, to JointState) bool {
	_, ok := PaymentStatusProcess[JointTransition{From: from, To: to}]
	return ok
}

// forwardAdjacency indexes PaymentStatusProcess by its From state, so
// CanAdvance can walk it without a linear scan per hop.
var forwardAdjacency = buildAdjacency(PaymentStatusProcess)

func buildAdjacency(joint map[JointTransition]struct{}) map[JointState][]JointState {
	out := make(map[JointState][]JointState)
	for t := range joint {
		out[t.From] = append(out[t.From], t.To)
	}
	return out
}

// CanAdvance reports whether to is reachable from from via zero or more
// single-step transitions in the payment status process. A side is free
// to report having moved through several of its own states in one round
// (one KYC exchange can satisfy stable ID, KYC data and recipient
// signature together); CanAdvance accepts that as long as every
// intervening step — including the one that lands on settled — is
// itself a transition PaymentStatusProcess actually contains, so the
// settled dependency on the other side's status still applies at
// whichever hop reaches it.
func CanAdvance(from, to JointState) bool {
	if from == to {
		return true
	}
	visited := map[JointState]bool{from: true}
	queue := []JointState{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range forwardAdjacency[cur] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// IsTerminal reports whether a joint state is one the process never
// progresses from — settled, or both sides aborted.
func IsTerminal(state JointState) bool {
	_, ok := TerminalStates[state]
	return ok
}
