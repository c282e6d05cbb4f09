// Package vasp wires the protocol layers (channel, executor, processor)
// into one running VASP: a channel registry keyed by counterparty
// address, each backed by its own durable object store and executor,
// sharing one BusinessContext. Grounded on protocol.py's OffChainVASP,
// which plays the equivalent role over VASPPairChannel.
package vasp

import (
	"context"
	"fmt"
	"sync"

	"vasp-offchain.backend/internal/address"
	"vasp-offchain.backend/internal/channel"
	"vasp-offchain.backend/internal/executor"
	"vasp-offchain.backend/internal/payment"
	"vasp-offchain.backend/internal/processor"
	"vasp-offchain.backend/internal/storage"
)

// PeerClient delivers an encoded protocol message to a counterparty and
// returns its reply, or an error if the counterparty could not be
// reached. Implemented by internal/transport/http against the reference
// VASP HTTP API.
type PeerClient interface {
	Deliver(ctx context.Context, to address.Address, kind MessageKind, body []byte) ([]byte, error)
}

// MessageKind distinguishes a pushed request from a pushed response on
// the wire, since a VASP.Network implementation must hand both to the
// same PeerClient.
type MessageKind string

const (
	KindRequest  MessageKind = "request"
	KindResponse MessageKind = "response"
)

type peerChannel struct {
	ch    *channel.Channel
	store *PaymentObjectStore
}

// VASP is one running off-chain payment VASP: its own address, a
// business context shared by every channel, and the per-counterparty
// channels it opens lazily as new peers are contacted.
type VASP struct {
	myself  address.Address
	factory *storage.Factory
	business processor.BusinessContext
	client  PeerClient

	mu       sync.Mutex
	channels map[string]*peerChannel
}

// New builds a VASP rooted at factory for persistence, using business for
// every channel's processor, and client to reach counterparties.
func New(myself address.Address, factory *storage.Factory, business processor.BusinessContext, client PeerClient) *VASP {
	return &VASP{
		myself:   myself,
		factory:  factory,
		business: business,
		client:   client,
		channels: make(map[string]*peerChannel),
	}
}

// MyAddress returns this VASP's own address.
func (v *VASP) MyAddress() address.Address { return v.myself }

// Channel returns the channel to other, creating and persisting its
// storage and executor wiring the first time this VASP talks to it.
func (v *VASP) Channel(other address.Address) (*channel.Channel, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channelLocked(other)
}

func (v *VASP) channelLocked(other address.Address) (*channel.Channel, error) {
	key := other.String()
	if entry, ok := v.channels[key]; ok {
		return entry.ch, nil
	}

	store := NewPaymentObjectStore(v.factory, "channels/"+key+"/objects")
	pctx := &processor.Context{
		Ctx:          context.Background(),
		MyAddress:    v.myself.String(),
		OtherAddress: key,
		Store:        store,
	}
	exec := executor.New(pctx, processor.NewPaymentProcessor(v.business), store, v.myself.String())
	ch, err := channel.New(v.myself, other, exec, v, channel.Config{})
	if err != nil {
		return nil, err
	}
	entry := &peerChannel{ch: ch, store: store}
	pctx.Resubmitter = &channelResubmitter{ch: ch}
	v.channels[key] = entry
	return ch, nil
}

// Channels returns the addresses of every counterparty this VASP has
// opened a channel with so far, for the admin introspection surface.
func (v *VASP) Channels() []address.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]address.Address, 0, len(v.channels))
	for _, entry := range v.channels {
		out = append(out, entry.ch.OtherAddress())
	}
	return out
}

// PaymentVersions lists every object version recorded on the channel with
// other, for the admin introspection surface. It does not create a
// channel that doesn't already exist.
func (v *VASP) PaymentVersions(other address.Address) ([]string, error) {
	v.mu.Lock()
	entry, ok := v.channels[other.String()]
	v.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vasp: no channel open with %s", other)
	}
	return entry.store.Versions()
}

// PaymentRecord returns the full record of one object version on the
// channel with other, for the admin introspection surface.
func (v *VASP) PaymentRecord(other address.Address, version string) (map[string]any, error) {
	v.mu.Lock()
	entry, ok := v.channels[other.String()]
	v.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vasp: no channel open with %s", other)
	}
	obj, err := entry.store.Get(version)
	if err != nil {
		return nil, err
	}
	p, err := payment.FromShared(obj)
	if err != nil {
		return nil, err
	}
	return p.GetFullRecord(), nil
}

// SendRequest implements channel.Network by handing the request to the
// peer client and feeding whatever response comes back into the
// originating channel.
func (v *VASP) SendRequest(to address.Address, req *channel.RequestMessage) {
	v.deliver(to, KindRequest, req, nil)
}

// SendResponse implements channel.Network, pushing a response the
// channel produced asynchronously (from its pending-request queue) back
// to the peer.
func (v *VASP) SendResponse(to address.Address, resp *channel.ResponseMessage) {
	v.deliver(to, KindResponse, nil, resp)
}

func (v *VASP) deliver(to address.Address, kind MessageKind, req *channel.RequestMessage, resp *channel.ResponseMessage) {
	if v.client == nil {
		return
	}
	var body []byte
	var err error
	switch kind {
	case KindRequest:
		body, err = encodeRequest(req)
	default:
		body, err = encodeResponse(resp)
	}
	if err != nil {
		return
	}

	reply, err := v.client.Deliver(context.Background(), to, kind, body)
	if err != nil || kind != KindRequest {
		return
	}
	respMsg, err := decodeResponse(reply)
	if err != nil {
		return
	}
	ch, err := v.Channel(to)
	if err != nil {
		return
	}
	ch.HandleResponse(respMsg)
}

// HandleIncomingRequest decodes a wire request from other, runs it
// through that peer's channel, and returns the wire-encoded response to
// send back synchronously — the path internal/transport/http's protocol
// endpoint drives.
func (v *VASP) HandleIncomingRequest(other address.Address, body []byte) ([]byte, error) {
	req, err := decodeRequest(body)
	if err != nil {
		return nil, fmt.Errorf("vasp: malformed request from %s: %w", other, err)
	}
	ch, err := v.Channel(other)
	if err != nil {
		return nil, err
	}
	resp := ch.HandleRequest(req)
	return encodeResponse(resp)
}

// HandleIncomingResponse decodes a wire response from other and applies
// it to that peer's channel — the path for a response the peer pushed
// back to us out of band (SendResponse on their side).
func (v *VASP) HandleIncomingResponse(other address.Address, body []byte) error {
	resp, err := decodeResponse(body)
	if err != nil {
		return fmt.Errorf("vasp: malformed response from %s: %w", other, err)
	}
	ch, err := v.Channel(other)
	if err != nil {
		return err
	}
	ch.HandleResponse(resp)
	return nil
}

// channelResubmitter bridges processor.Resubmitter to a specific
// channel, so PaymentProcessor.ProcessCommand can hand a follow-up
// command back into local sequencing without internal/processor
// importing internal/channel.
type channelResubmitter struct {
	ch *channel.Channel
}

// SequenceLocal hands cmd to the channel for sequencing. ProcessCommand
// calls this from deep inside the channel's own locked request/response
// handling, so sequencing has to happen off that goroutine: resequencing
// inline would try to re-acquire the channel's mutex from within the
// critical section that is already holding it.
func (r *channelResubmitter) SequenceLocal(cmd *processor.PaymentCommand) error {
	go func() {
		_, _ = r.ch.SequenceCommandLocal(cmd)
	}()
	return nil
}
