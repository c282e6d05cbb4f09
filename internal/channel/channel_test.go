package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vasp-offchain.backend/internal/address"
	"vasp-offchain.backend/internal/executor"
	"vasp-offchain.backend/internal/sharedobject"
)

type testPayload struct{ note string }

func (p *testPayload) Clone() sharedobject.Payload {
	clone := *p
	return &clone
}

// testCommand is a minimal executor.Command that creates one new object
// version named after itself and depends on nothing, enough to exercise
// channel sequencing without needing the full payment command.
type testCommand struct {
	origin  string
	name    string
	deps    []string
}

func (c *testCommand) Origin() string          { return c.origin }
func (c *testCommand) SetOrigin(origin string) { c.origin = origin }
func (c *testCommand) Dependencies() []string  { return c.deps }
func (c *testCommand) NewObjectVersions() []string {
	return []string{c.name}
}
func (c *testCommand) GetObject(version string, store executor.ObjectStore) (*sharedobject.Object, error) {
	return sharedobject.New(&testPayload{note: c.name}, version), nil
}

type acceptingProcessor struct{}

func (acceptingProcessor) CheckCommand(ctx any, command executor.Command) error { return nil }
func (acceptingProcessor) ProcessCommand(ctx any, command executor.Command, isSuccess bool) {}

// pairNetwork wires two channels' requests/responses directly to each
// other's handlers, synchronously, standing in for a transport.
type pairNetwork struct {
	peer *Channel
}

func (n *pairNetwork) SendRequest(to address.Address, req *RequestMessage) {
	resp := n.peer.HandleRequest(req)
	n.peer.SendResponse(resp)
}

func (n *pairNetwork) SendResponse(to address.Address, resp *ResponseMessage) {
	n.peer.HandleResponse(resp)
}

func mustAddress(t *testing.T, onChain byte) address.Address {
	t.Helper()
	raw := make([]byte, 16)
	raw[15] = onChain
	a, err := address.New(address.Testnet, raw, nil)
	require.NoError(t, err)
	return a
}

func buildPair(t *testing.T) (client, server *Channel) {
	t.Helper()
	// Addresses chosen so the higher last-significant-byte wins the
	// client role under IsClient's ordering rule.
	lo := mustAddress(t, 1)
	hi := mustAddress(t, 2)

	loStore := executor.NewMemoryObjectStore()
	hiStore := executor.NewMemoryObjectStore()
	loExec := executor.New(nil, acceptingProcessor{}, loStore, lo.String())
	hiExec := executor.New(nil, acceptingProcessor{}, hiStore, hi.String())

	loChan, err := New(lo, hi, loExec, nil, Config{})
	require.NoError(t, err)
	hiChan, err := New(hi, lo, hiExec, nil, Config{})
	require.NoError(t, err)

	loChan.net = &pairNetwork{peer: hiChan}
	hiChan.net = &pairNetwork{peer: loChan}

	if loChan.IsClient() {
		return loChan, hiChan
	}
	return hiChan, loChan
}

func TestChannel_RoleElectionIsConsistentAcrossBothSides(t *testing.T) {
	client, server := buildPair(t)
	require.True(t, client.IsClient())
	require.True(t, server.IsServer())
	require.False(t, client.IsServer())
	require.Equal(t, "client", client.Role())
	require.Equal(t, "server", server.Role())
}

func TestChannel_SelfChannelIsRejected(t *testing.T) {
	addr := mustAddress(t, 9)
	store := executor.NewMemoryObjectStore()
	exec := executor.New(nil, acceptingProcessor{}, store, addr.String())
	_, err := New(addr, addr, exec, nil, Config{})
	require.Error(t, err)
}

func TestChannel_ClientProposalSequencesAfterServerConfirms(t *testing.T) {
	client, server := buildPair(t)

	cmd := &testCommand{origin: client.MyAddress().String(), name: "v1"}
	req, err := client.SequenceCommandLocal(cmd)
	require.NoError(t, err)
	require.True(t, req.HasResponse(), "synchronous test network delivers the response inline")
	require.True(t, req.IsSuccess())

	require.Equal(t, 1, client.NextFinalSequence())
	require.Equal(t, 1, server.NextFinalSequence())
}

func TestChannel_ServerProposalSequencesSpeculativelyBeforeClientAck(t *testing.T) {
	client, server := buildPair(t)

	cmd := &testCommand{origin: server.MyAddress().String(), name: "v1"}
	req, err := server.SequenceCommandLocal(cmd)
	require.NoError(t, err)

	// The server speculatively sequenced its own proposal before sending
	// it, so its final sequence already advanced.
	require.Equal(t, 1, server.NextFinalSequence())
	require.True(t, req.HasResponse())
	require.True(t, req.IsSuccess())
	require.Equal(t, 1, client.NextFinalSequence())
}

func TestChannel_DuplicateRequestReturnsCachedResponse(t *testing.T) {
	client, server := buildPair(t)

	cmd := &testCommand{origin: client.MyAddress().String(), name: "v1"}
	req, err := client.SequenceCommandLocal(cmd)
	require.NoError(t, err)

	replay := &RequestMessage{Seq: req.Seq, Command: cmd}
	resp := server.HandleRequest(replay)
	require.Equal(t, StatusSuccess, resp.Status)
}

func TestChannel_ConflictingResendIsRejected(t *testing.T) {
	client, server := buildPair(t)

	cmd := &testCommand{origin: client.MyAddress().String(), name: "v1"}
	req, err := client.SequenceCommandLocal(cmd)
	require.NoError(t, err)

	other := &testCommand{origin: client.MyAddress().String(), name: "different"}
	conflict := &RequestMessage{Seq: req.Seq, Command: other}
	resp := server.HandleRequest(conflict)
	require.Equal(t, StatusFailure, resp.Status)
	require.Equal(t, ErrorConflict, resp.Error.Code)
}

func TestChannel_OutOfOrderRequestIsRejectedAsMissing(t *testing.T) {
	_, server := buildPair(t)

	cmd := &testCommand{origin: server.OtherAddress().String(), name: "v7"}
	req := &RequestMessage{Seq: 3, Command: cmd}
	resp := server.HandleRequest(req)
	require.Equal(t, StatusFailure, resp.Status)
	require.Equal(t, ErrorMissing, resp.Error.Code)
}

func TestChannel_RetransmitAdvancesOnlyPastAnsweredRequests(t *testing.T) {
	client, _ := buildPair(t)
	require.False(t, client.WouldRetransmit(), "no requests yet")

	cmd := &testCommand{origin: client.MyAddress().String(), name: "v1"}
	_, err := client.SequenceCommandLocal(cmd)
	require.NoError(t, err)
	require.False(t, client.WouldRetransmit(), "the in-line test network already answered it")
}

func TestChannel_SendResponseIsNoOpWithoutNetwork(t *testing.T) {
	addr := mustAddress(t, 1)
	other := mustAddress(t, 2)
	store := executor.NewMemoryObjectStore()
	exec := executor.New(nil, acceptingProcessor{}, store, addr.String())
	c, err := New(addr, other, exec, nil, Config{})
	require.NoError(t, err)
	require.NotPanics(t, func() {
		c.SendResponse(&ResponseMessage{Status: StatusSuccess})
	})
}
