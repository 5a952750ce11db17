package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the kind of change pushed by the server
type EventType int

const (
	EventCreated EventType = iota + 1
	EventUpdated
	EventDeleted
)

var (
	ErrMalformedMessage = errors.New("malformed push message")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingNodeInfo  = errors.New("event carries no node info")
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "CREATED"
	case EventUpdated:
		return "UPDATED"
	case EventDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

func parseEventType(s string) (EventType, error) {
	switch s {
	case "CREATED":
		return EventCreated, nil
	case "UPDATED":
		return EventUpdated, nil
	case "DELETED":
		return EventDeleted, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
}

// wireEvent is the JSON shape of one push message
type wireEvent struct {
	Type     string
	Path     string
	NodeInfo *Node `json:",omitempty"`
}

// Event is a decoded push message. Path is kept verbatim; the synchronizer
// validates it into a NodeKey so depth violations can be reported to the
// user instead of disappearing inside the decoder.
type Event struct {
	Type EventType
	Path string
	Node *Node
}

// decodeEvent parses one push message. JSON errors wrap ErrMalformedMessage
// and unrecognized types wrap ErrUnknownEventType.
func decodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	typ, err := parseEventType(w.Type)
	if err != nil {
		return Event{}, err
	}
	if w.Path == "" {
		return Event{}, fmt.Errorf("%w: %s without path", ErrMalformedMessage, w.Type)
	}
	return Event{Type: typ, Path: w.Path, Node: w.NodeInfo}, nil
}

// encodeEvent produces the wire form used by the server hub
func encodeEvent(evt Event) ([]byte, error) {
	return json.Marshal(wireEvent{
		Type:     evt.Type.String(),
		Path:     evt.Path,
		NodeInfo: evt.Node,
	})
}
