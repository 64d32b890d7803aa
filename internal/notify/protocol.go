package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Hub wire protocol: JSON records terminated by an ASCII record
// separator. The first record on a fresh connection is the handshake;
// after that both sides exchange typed messages. The mock backend's
// hub speaks the same dialect, so the encoding lives here once.
const RecordSeparator byte = 0x1e

// Message type codes on the hub channel.
const (
	MsgInvocation = 1
	MsgPing       = 6
	MsgClose      = 7
)

// HandshakeRequest opens the channel; HandshakeResponse confirms it.
type HandshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type HandshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// HubMessage is one typed record on an established channel.
type HubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Invocation builds a type-1 record for a target with JSON-encoded
// arguments.
func Invocation(target string, args ...any) (HubMessage, error) {
	msg := HubMessage{Type: MsgInvocation, Target: target}
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return HubMessage{}, fmt.Errorf("encode argument: %w", err)
		}
		msg.Arguments = append(msg.Arguments, raw)
	}
	return msg, nil
}

// EncodeRecord marshals v and appends the record separator.
func EncodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode hub record: %w", err)
	}
	return append(data, RecordSeparator), nil
}

// SplitRecords slices one transport frame into its JSON records,
// dropping the empty tail after the final separator.
func SplitRecords(frame []byte) [][]byte {
	parts := bytes.Split(frame, []byte{RecordSeparator})
	records := parts[:0]
	for _, p := range parts {
		if len(p) > 0 {
			records = append(records, p)
		}
	}
	return records
}

// NegotiateResponse is the transport-selection reply of the
// /notification/negotiate endpoint.
type NegotiateResponse struct {
	ConnectionID        string               `json:"connectionId"`
	AvailableTransports []TransportAvailable `json:"availableTransports"`
}

type TransportAvailable struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

// TransportWebSockets is the only transport the mock hub offers; the
// production backend additionally advertises server-sent events and
// long polling.
const TransportWebSockets = "WebSockets"
