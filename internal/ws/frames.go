package ws

import "encoding/json"

// Frame is the JSON envelope exchanged on the wire. Client requests carry an
// event name plus an optional id used to correlate the ack; server pushes set
// only event and data; acks answer with the "ack" event and the caller's id.
type Frame struct {
	ID      uint64          `json:"id,omitempty"`
	Event   string          `json:"event"`
	OK      *bool           `json:"ok,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EventAck is the reserved event name for acknowledgement frames.
const EventAck = "ack"

func eventFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

func ackFrame(id uint64, ok bool, message string, payload any) ([]byte, error) {
	f := Frame{ID: id, Event: EventAck, OK: &ok, Message: message}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Data = data
	}
	return json.Marshal(f)
}
