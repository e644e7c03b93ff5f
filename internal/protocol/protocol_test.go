package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantEvent string
		wantErr   bool
	}{
		{name: "valid", raw: `{"event":"channel:join","data":{"channel_id":"c1"}}`, wantEvent: EventChannelJoin},
		{name: "no data", raw: `{"event":"typing:stop"}`, wantEvent: EventTypingStop},
		{name: "trims event", raw: `{"event":"  message:send "}`, wantEvent: EventMessageSend},
		{name: "missing event", raw: `{"data":{}}`, wantErr: true},
		{name: "not json", raw: `hello`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, f.Event)
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	raw, err := EncodeFrame(EventMessageDeleted, MessageDeleted{ID: "m1", ChannelID: "c1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"message:deleted","data":{"id":"m1","channel_id":"c1"}}`, string(raw))
}

func TestUnmarshalAcceptsBothCasings(t *testing.T) {
	snake := json.RawMessage(`{"channel_id":"c1","content":"  hi  ","parent_id":"p1"}`)
	camel := json.RawMessage(`{"channelId":"c1","content":"hi","parentId":"p1"}`)

	var a, b SendPayload
	require.NoError(t, Unmarshal(snake, &a))
	require.NoError(t, Unmarshal(camel, &b))

	assert.Equal(t, a, b)
	assert.Equal(t, "c1", a.ChannelID)
	assert.Equal(t, "hi", a.Content)
	assert.Equal(t, "p1", a.ParentID)
	assert.Equal(t, "text", a.Type)
}

func TestUnmarshalNumericIdentifiers(t *testing.T) {
	var p ReadPayload
	require.NoError(t, Unmarshal(json.RawMessage(`{"channelId":12,"message_id":340}`), &p))
	assert.Equal(t, "12", p.ChannelID)
	assert.Equal(t, "340", p.MessageID)

	var q PresenceQuery
	require.NoError(t, Unmarshal(json.RawMessage(`{"user_ids":["u1",2]}`), &q))
	assert.Equal(t, []string{"u1", "2"}, q.UserIDs)
}

func TestUnmarshalEmptyData(t *testing.T) {
	var p ChannelPayload
	require.NoError(t, Unmarshal(nil, &p))
	require.NoError(t, Unmarshal(json.RawMessage(`null`), &p))
	assert.Empty(t, p.ChannelID)

	require.Error(t, Unmarshal(json.RawMessage(`[1,2]`), &p))
}

func TestValidatorRejectsMissingFields(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		payload any
		fields  []string
	}{
		{name: "send without content", payload: &SendPayload{ChannelID: "c1", Type: "text"}, fields: []string{"Content"}},
		{name: "send whitespace content", payload: func() *SendPayload {
			var p SendPayload
			_ = Unmarshal(json.RawMessage(`{"channel_id":"c1","content":"   "}`), &p)
			return &p
		}(), fields: []string{"Content"}},
		{name: "reaction without emoji", payload: &ReactionPayload{MessageID: "m1"}, fields: []string{"Emoji"}},
		{name: "presence without ids", payload: &PresenceQuery{}, fields: []string{"UserIDs"}},
		{name: "status too long", payload: &StatusPayload{Status: "a-very-long-status-value-here"}, fields: []string{"Status"}},
		{name: "valid channel", payload: &ChannelPayload{ChannelID: "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateStruct(tt.payload)
			got := make([]string, 0, len(errs))
			for _, e := range errs {
				got = append(got, e.Field)
			}
			if len(tt.fields) == 0 {
				assert.Empty(t, got)
				assert.NoError(t, v.Check(tt.payload))
				return
			}
			assert.ElementsMatch(t, tt.fields, got)
			assert.Error(t, v.Check(tt.payload))
		})
	}
}
