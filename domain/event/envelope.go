package event

import (
	"encoding/json"
)

// Envelope is the wire frame exchanged on a connection, in both directions.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps an outbound event into its wire frame.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: data})
}
