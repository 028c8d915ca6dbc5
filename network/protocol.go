package network

import (
	"encoding/json"
)

// Message types sent to watchers over the event stream.
const (
	MsgTypeHello = "hello"
	MsgTypeEvent = "event"
)

// Envelope wraps every message written to a watcher.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode builds an envelope of msgType around payload.
func Encode(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}
