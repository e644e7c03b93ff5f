package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is implemented by every inbound payload type.
type Payload interface {
	decode(f fields)
}

// Unmarshal fills p from a frame's data. Field names are accepted in both
// snake_case and camelCase, and identifiers may be JSON strings or numbers.
func Unmarshal(data json.RawMessage, p Payload) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	p.decode(f)
	return nil
}

// AuthPayload carries the session token of the handshake frame.
type AuthPayload struct {
	Token string `validate:"required"`
}

func (p *AuthPayload) decode(f fields) {
	p.Token = strings.TrimSpace(f.str("token"))
}

// ChannelPayload is used by channel:join, channel:leave, channel:get_online
// and the typing events.
type ChannelPayload struct {
	ChannelID string `validate:"required"`
}

func (p *ChannelPayload) decode(f fields) {
	p.ChannelID = f.id("channel_id", "channelId")
}

// SendPayload is the body of message:send. Content is trimmed while decoding.
type SendPayload struct {
	ChannelID string `validate:"required"`
	Content   string `validate:"required"`
	Type      string `validate:"max=20"`
	ParentID  string
}

func (p *SendPayload) decode(f fields) {
	p.ChannelID = f.id("channel_id", "channelId")
	p.Content = strings.TrimSpace(f.str("content"))
	p.Type = strings.TrimSpace(f.str("type"))
	if p.Type == "" {
		p.Type = "text"
	}
	p.ParentID = f.id("parent_id", "parentId")
}

// EditPayload is the body of message:update and its alias message:edit.
type EditPayload struct {
	MessageID string `validate:"required"`
	Content   string `validate:"required"`
}

func (p *EditPayload) decode(f fields) {
	p.MessageID = f.id("message_id", "messageId")
	p.Content = strings.TrimSpace(f.str("content"))
}

// DeletePayload is the body of message:delete.
type DeletePayload struct {
	MessageID string `validate:"required"`
}

func (p *DeletePayload) decode(f fields) {
	p.MessageID = f.id("message_id", "messageId")
}

// ReadPayload is the body of message:read.
type ReadPayload struct {
	ChannelID string `validate:"required"`
	MessageID string `validate:"required"`
}

func (p *ReadPayload) decode(f fields) {
	p.ChannelID = f.id("channel_id", "channelId")
	p.MessageID = f.id("message_id", "messageId")
}

// ReactionPayload is the body of reaction:add, reaction:remove and
// reaction:toggle.
type ReactionPayload struct {
	MessageID string `validate:"required"`
	Emoji     string `validate:"required,max=64"`
}

func (p *ReactionPayload) decode(f fields) {
	p.MessageID = f.id("message_id", "messageId")
	p.Emoji = strings.TrimSpace(f.str("emoji"))
}

// StatusPayload is the body of presence:status.
type StatusPayload struct {
	Status        string `validate:"required,max=20"`
	StatusMessage string `validate:"max=200"`
}

func (p *StatusPayload) decode(f fields) {
	p.Status = strings.TrimSpace(f.str("status"))
	p.StatusMessage = strings.TrimSpace(f.str("status_message", "statusMessage"))
}

// PresenceQuery is the body of presence:get.
type PresenceQuery struct {
	UserIDs []string `validate:"required,min=1,max=500,dive,required"`
}

func (p *PresenceQuery) decode(f fields) {
	p.UserIDs = f.ids("user_ids", "userIds")
}

type fields map[string]json.RawMessage

func decodeFields(data json.RawMessage) (fields, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fields{}, nil
	}
	var f fields
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return f, nil
}

// str returns the first of keys holding a string or number.
func (f fields) str(keys ...string) string {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		if s, ok := scalar(raw); ok {
			return s
		}
	}
	return ""
}

func (f fields) id(keys ...string) string {
	return strings.TrimSpace(f.str(keys...))
}

func (f fields) ids(keys ...string) []string {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, _ := scalar(item)
			out = append(out, strings.TrimSpace(s))
		}
		return out
	}
	return nil
}

func scalar(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
