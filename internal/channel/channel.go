package channel

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"vasp-offchain.backend/internal/address"
	"vasp-offchain.backend/internal/executor"
)

// defaultResponseCacheSize bounds the response cache when a channel is
// built without an explicit Config (spec.md §9 open question: choose a
// bounded cache policy).
const defaultResponseCacheSize = 128

// Config tunes a Channel's ephemeral, non-persisted behaviour.
type Config struct {
	ResponseCacheSize int
}

// Network is the hook a Channel uses to hand a request or response to the
// transport layer. Sending happens outside the channel's lock so transports
// may implement it asynchronously.
type Network interface {
	SendRequest(to address.Address, req *RequestMessage)
	SendResponse(to address.Address, resp *ResponseMessage)
}

// Channel is the bidirectional protocol state between one VASP and a
// single counterparty. Grounded on protocol.py's VASPPairChannel: role
// election by address ordering, a local request log each side maintains
// independently, and a shared Executor that serializes both sides'
// commands into one final sequence.
type Channel struct {
	mu sync.Mutex

	myself address.Address
	other  address.Address
	exec   *executor.Executor
	net    Network

	myRequests    []*RequestMessage
	otherRequests []*RequestMessage
	nextRetransmit int

	responseCache  *lru.Cache[int, *ResponseMessage]
	pendingRequests []*RequestMessage
}

// New builds a channel between myself and other. exec must already be
// wired to a Processor and ObjectStore for this pair; net delivers
// outgoing requests/responses to the transport.
func New(myself, other address.Address, exec *executor.Executor, net Network, cfg Config) (*Channel, error) {
	if myself.Equal(other) {
		return nil, fmt.Errorf("channel: cannot open a channel to self (%s)", myself)
	}
	size := cfg.ResponseCacheSize
	if size <= 0 {
		size = defaultResponseCacheSize
	}
	cache, err := lru.New[int, *ResponseMessage](size)
	if err != nil {
		return nil, fmt.Errorf("channel: building response cache: %w", err)
	}
	return &Channel{
		myself:        myself,
		other:         other,
		exec:          exec,
		net:           net,
		responseCache: cache,
	}, nil
}

// MyAddress returns this VASP's own address on the channel.
func (c *Channel) MyAddress() address.Address { return c.myself }

// OtherAddress returns the counterparty's address.
func (c *Channel) OtherAddress() address.Address { return c.other }

// IsClient reports whether this VASP plays the client role for this pair,
// decided deterministically from both addresses' last bit and, on a tie,
// lexicographic order — so both sides agree without any negotiation.
func (c *Channel) IsClient() bool {
	bit := c.myself.LastBit() ^ c.other.LastBit()
	switch bit {
	case 0:
		return c.myself.GreaterThanOrEqual(c.other)
	default:
		return !c.myself.GreaterThanOrEqual(c.other)
	}
}

// IsServer is the complement of IsClient.
func (c *Channel) IsServer() bool { return !c.IsClient() }

// Role renders the channel's role for this VASP, for diagnostics.
func (c *Channel) Role() string {
	if c.IsClient() {
		return "client"
	}
	return "server"
}

func (c *Channel) myNextSeq() int    { return len(c.myRequests) }
func (c *Channel) otherNextSeq() int { return len(c.otherRequests) }

// NextFinalSequence returns the next sequence number the shared executor
// would assign.
func (c *Channel) NextFinalSequence() int { return c.exec.NextSeq() }

func (c *Channel) numPendingResponses() int {
	pending := 0
	for _, req := range c.myRequests {
		if !req.HasResponse() {
			pending++
		}
	}
	return pending
}

// HasPendingResponses reports whether any of our own requests are still
// awaiting a response.
func (c *Channel) HasPendingResponses() bool {
	return c.WouldRetransmit()
}

// SequenceCommandLocal proposes a new command originating from this VASP.
// It assigns the command its place in our own request log, optionally
// speculatively sequencing it onto the shared executor (when we are the
// server, the only side that can assign a final sequence number), and
// hands the resulting request to the network.
func (c *Channel) SequenceCommandLocal(command executor.Command) (*RequestMessage, error) {
	command.SetOrigin(c.myself.String())

	c.mu.Lock()
	req := &RequestMessage{Command: command}
	req.Seq = c.myNextSeq()

	if c.IsServer() {
		seq := c.NextFinalSequence()
		req.CommandSeq = &seq
		if _, err := c.exec.SequenceNextCommand(command, true); err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("channel: sequencing own command: %w", err)
		}
	}
	c.myRequests = append(c.myRequests, req)
	c.mu.Unlock()

	if c.net != nil {
		c.net.SendRequest(c.other, req)
	}
	return req, nil
}

// HandleRequest processes a request received from the counterparty and
// returns the response to send back.
func (c *Channel) HandleRequest(request *RequestMessage) *ResponseMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handleRequestLocked(request)
}

func (c *Channel) handleRequestLocked(request *RequestMessage) *ResponseMessage {
	request.Command.SetOrigin(c.other.String())

	if request.Seq < c.otherNextSeq() {
		previous := c.otherRequests[request.Seq]
		if previous.IsSameCommand(request) {
			return previous.Response
		}
		resp := protocolErrorResponse(request, ErrorConflict)
		return resp
	}

	if c.IsServer() && request.CommandSeq != nil {
		return protocolErrorResponse(request, ErrorMalformed)
	}

	if c.IsServer() && c.numPendingResponses() > 0 {
		c.pendingRequests = append(c.pendingRequests, request)
		return protocolErrorResponse(request, ErrorWait)
	}

	switch {
	case request.Seq == c.otherNextSeq():
		if c.IsClient() && request.CommandSeq != nil && *request.CommandSeq > c.NextFinalSequence() {
			return protocolErrorResponse(request, ErrorWait)
		}

		seq := c.NextFinalSequence()
		var response *ResponseMessage
		if _, err := c.exec.SequenceNextCommand(request.Command, false); err != nil {
			response = commandErrorResponse(request, err.Error())
		} else {
			response = successResponse(request)
		}
		response.CommandSeq = seq

		request.Response = response
		c.otherRequests = append(c.otherRequests, request)
		c.applyResponseToExecutorLocked(request)
		return request.Response

	case request.Seq > c.otherNextSeq():
		return protocolErrorResponse(request, ErrorMissing)

	default:
		panic("channel: unreachable request sequencing branch")
	}
}

// SendResponse hands resp to the network layer for delivery back to the
// counterparty who sent the originating request.
func (c *Channel) SendResponse(resp *ResponseMessage) {
	if c.net != nil {
		c.net.SendResponse(c.other, resp)
	}
}

func (c *Channel) applyResponseToExecutorLocked(request *RequestMessage) {
	response := request.Response
	if response.Status == StatusSuccess {
		_ = c.exec.SetSuccess(response.CommandSeq)
	} else {
		_ = c.exec.SetFail(response.CommandSeq)
	}
}

// HandleResponse processes a response to one of our own earlier requests.
func (c *Channel) HandleResponse(response *ResponseMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleResponseLocked(response)
}

func (c *Channel) handleResponseLocked(response *ResponseMessage) {
	if response.Seq >= len(c.myRequests) {
		return
	}

	if !response.NotProtocolFailure() {
		switch response.Error.Code {
		case ErrorMissing, ErrorWait:
			// will retransmit
		case ErrorMalformed, ErrorConflict:
			// implementation bug on the other side, nothing to retry
		}
		return
	}

	if c.nextRetransmit == response.Seq {
		c.nextRetransmit++
	}

	request := c.myRequests[response.Seq]
	if request.HasResponse() {
		return
	}

	switch {
	case response.CommandSeq == c.NextFinalSequence():
		request.Response = response
		c.myRequests[response.Seq] = request
		_, _ = c.exec.SequenceNextCommand(request.Command, false)
		c.applyResponseToExecutorLocked(request)
		c.processPendingRequestsResponseLocked()

	case response.CommandSeq < c.NextFinalSequence():
		request.Response = response
		c.myRequests[response.Seq] = request
		c.applyResponseToExecutorLocked(request)
		c.processPendingRequestsResponseLocked()

	default:
		c.responseCache.Add(response.CommandSeq, response)
	}
}

// processPendingRequestsResponseLocked re-schedules requests the server
// delayed with ErrorWait once all of our own pending requests are
// resolved, and replays any response the cache was holding for the
// sequence position that just became current.
func (c *Channel) processPendingRequestsResponseLocked() {
	if c.numPendingResponses() == 0 && len(c.pendingRequests) > 0 {
		pending := c.pendingRequests
		c.pendingRequests = nil
		for _, req := range pending {
			resp := c.handleRequestLocked(req)
			c.SendResponse(resp)
		}
	}

	if resp, ok := c.responseCache.Get(c.NextFinalSequence()); ok {
		c.responseCache.Remove(c.NextFinalSequence())
		c.handleResponseLocked(resp)
	}
}

// Retransmit re-sends the earliest outstanding request that has not yet
// received a response, if any.
func (c *Channel) Retransmit() {
	c.mu.Lock()
	req := c.wouldRetransmitLocked(true)
	c.mu.Unlock()
	if req != nil {
		c.net.SendRequest(c.other, req)
	}
}

// WouldRetransmit reports whether a retransmit is currently due, without
// sending anything.
func (c *Channel) WouldRetransmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wouldRetransmitLocked(false) != nil
}

func (c *Channel) wouldRetransmitLocked(doRetransmit bool) *RequestMessage {
	var toSend *RequestMessage
	for c.nextRetransmit < len(c.myRequests) {
		req := c.myRequests[c.nextRetransmit]
		if req.HasResponse() {
			c.nextRetransmit++
			continue
		}
		if doRetransmit {
			toSend = req
		}
		break
	}
	return toSend
}
