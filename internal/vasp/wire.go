package vasp

import (
	"encoding/json"
	"fmt"

	"vasp-offchain.backend/internal/channel"
	"vasp-offchain.backend/internal/processor"
)

// wireCommand is PaymentCommand's wire shape: its unexported fields
// surfaced explicitly, since a generic JSON encoding of the
// executor.Command interface field on RequestMessage would see only the
// concrete type's exported surface.
type wireCommand struct {
	Origin       string         `json:"origin"`
	Dependencies []string       `json:"dependencies"`
	Creates      []string       `json:"creates"`
	Diff         map[string]any `json:"diff"`
}

type wireRequest struct {
	Seq        int         `json:"seq"`
	CommandSeq *int        `json:"command_seq,omitempty"`
	Command    wireCommand `json:"command"`
}

func encodeRequest(req *channel.RequestMessage) ([]byte, error) {
	cmd, ok := req.Command.(*processor.PaymentCommand)
	if !ok {
		return nil, fmt.Errorf("vasp: cannot encode command of type %T", req.Command)
	}
	return json.Marshal(wireRequest{
		Seq:        req.Seq,
		CommandSeq: req.CommandSeq,
		Command: wireCommand{
			Origin:       cmd.Origin(),
			Dependencies: cmd.Dependencies(),
			Creates:      cmd.NewObjectVersions(),
			Diff:         cmd.Diff(),
		},
	})
}

func decodeRequest(body []byte) (*channel.RequestMessage, error) {
	var wire wireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	cmd := processor.NewPaymentCommandFromWire(wire.Command.Origin, wire.Command.Dependencies, wire.Command.Creates, wire.Command.Diff)
	return &channel.RequestMessage{Seq: wire.Seq, CommandSeq: wire.CommandSeq, Command: cmd}, nil
}

func encodeResponse(resp *channel.ResponseMessage) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(body []byte) (*channel.ResponseMessage, error) {
	var resp channel.ResponseMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
