// Package channel implements the bidirectional protocol channel between a
// VASP and one counterparty: role election, local command sequencing, and
// request/response handling. Grounded on protocol.py's VASPPairChannel.
package channel

import "vasp-offchain.backend/internal/executor"

// RequestMessage is one entry of a VASP's own outgoing request log. It
// mirrors CommandRequestObject: a command paired with the sequencing
// metadata and, once known, the response it received.
type RequestMessage struct {
	Seq         int               `json:"seq"`
	CommandSeq  *int              `json:"command_seq,omitempty"`
	Command     executor.Command  `json:"command"`
	Response    *ResponseMessage  `json:"response,omitempty"`
}

// HasResponse reports whether this request already carries a response.
func (r *RequestMessage) HasResponse() bool { return r.Response != nil }

// IsSuccess reports whether the response recorded against this request was
// a success. Callers must check HasResponse first.
func (r *RequestMessage) IsSuccess() bool { return r.Response.Status == StatusSuccess }

// IsSameCommand reports whether other carries the same command as r, used
// to detect a conflicting resend of a sequence number already on file.
func (r *RequestMessage) IsSameCommand(other *RequestMessage) bool {
	return r.Command == other.Command
}

// Status is the outcome recorded on a ResponseMessage.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ErrorCode enumerates the protocol-level (not command-level) failure
// reasons a ResponseMessage can carry.
type ErrorCode string

const (
	ErrorConflict   ErrorCode = "conflict"
	ErrorMalformed  ErrorCode = "malformed"
	ErrorWait       ErrorCode = "wait"
	ErrorMissing    ErrorCode = "missing"
	ErrorParsing    ErrorCode = "parsing"
	ErrorCommand    ErrorCode = "command"
)

// ResponseError describes why a request was refused.
type ResponseError struct {
	ProtocolError bool      `json:"protocol_error"`
	Code          ErrorCode `json:"code"`
	Message       string    `json:"message,omitempty"`
}

// ResponseMessage is the reply to one RequestMessage.
type ResponseMessage struct {
	Seq        int            `json:"seq"`
	CommandSeq int            `json:"command_seq"`
	Status     Status         `json:"status"`
	Error      *ResponseError `json:"error,omitempty"`
}

// NotProtocolFailure reports whether this response is either a success, or
// a command-level (not protocol-level) failure — the cases in which the
// executor should be told the outcome.
func (r *ResponseMessage) NotProtocolFailure() bool {
	return r.Status == StatusSuccess || (r.Error != nil && !r.Error.ProtocolError)
}

func successResponse(req *RequestMessage) *ResponseMessage {
	return &ResponseMessage{Seq: req.Seq, Status: StatusSuccess}
}

func commandErrorResponse(req *RequestMessage, message string) *ResponseMessage {
	return &ResponseMessage{
		Seq:    req.Seq,
		Status: StatusFailure,
		Error:  &ResponseError{ProtocolError: false, Code: ErrorCommand, Message: message},
	}
}

func protocolErrorResponse(req *RequestMessage, code ErrorCode) *ResponseMessage {
	return &ResponseMessage{
		Seq:    req.Seq,
		Status: StatusFailure,
		Error:  &ResponseError{ProtocolError: true, Code: code},
	}
}
