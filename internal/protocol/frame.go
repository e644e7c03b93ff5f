// Package protocol defines the frames exchanged between the gateway and its
// clients: event names, the JSON envelope, inbound payload decoding and the
// outbound payload shapes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event names.
const (
	EventAuth             = "auth"
	EventChannelJoin      = "channel:join"
	EventChannelLeave     = "channel:leave"
	EventChannelGetOnline = "channel:get_online"
	EventMessageSend      = "message:send"
	EventMessageUpdate    = "message:update"
	EventMessageEdit      = "message:edit"
	EventMessageDelete    = "message:delete"
	EventMessageRead      = "message:read"
	EventReactionAdd      = "reaction:add"
	EventReactionRemove   = "reaction:remove"
	EventReactionToggle   = "reaction:toggle"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
	EventPresenceStatus   = "presence:status"
	EventPresenceGet      = "presence:get"
)

// Outbound event names.
const (
	EventMessageNew           = "message:new"
	EventMessageUpdated       = "message:updated"
	EventMessageDeleted       = "message:deleted"
	EventReactionUpdate       = "reaction:update"
	EventTypingUpdate         = "typing:update"
	EventMessageReadUpdate    = "message:read_update"
	EventPresenceUpdate       = "presence:update"
	EventPresenceList         = "presence:list"
	EventChannelOnlineMembers = "channel:online_members"
)

// ErrMissingEvent is returned when a frame has no event name.
var ErrMissingEvent = errors.New("frame has no event name")

// Frame is the envelope of every message on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame parses one inbound frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	f.Event = strings.TrimSpace(f.Event)
	if f.Event == "" {
		return Frame{}, ErrMissingEvent
	}
	return f, nil
}

// EncodeFrame builds the wire form of an outbound event.
func EncodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	out, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return out, nil
}
