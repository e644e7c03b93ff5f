package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/presence"
	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/store"
)

var errEmptyContent = errors.New("content is empty after sanitizing")

func (d *Dispatcher) routes() map[string]handler {
	return map[string]handler{
		protocol.EventChannelJoin:      d.channelJoin,
		protocol.EventChannelLeave:     d.channelLeave,
		protocol.EventChannelGetOnline: d.channelGetOnline,
		protocol.EventMessageSend:      d.messageSend,
		protocol.EventMessageUpdate:    d.messageUpdate,
		protocol.EventMessageEdit:      d.messageUpdate,
		protocol.EventMessageDelete:    d.messageDelete,
		protocol.EventMessageRead:      d.messageRead,
		protocol.EventReactionAdd:      d.reaction(addReaction),
		protocol.EventReactionRemove:   d.reaction(removeReaction),
		protocol.EventReactionToggle:   d.reaction(toggleReaction),
		protocol.EventTypingStart:      d.typing(true),
		protocol.EventTypingStop:       d.typing(false),
		protocol.EventPresenceStatus:   d.presenceStatus,
		protocol.EventPresenceGet:      d.presenceGet,
	}
}

func (d *Dispatcher) decode(data json.RawMessage, p protocol.Payload) error {
	if err := protocol.Unmarshal(data, p); err != nil {
		return validation(err)
	}
	if err := d.Validator.Check(p); err != nil {
		return validation(err)
	}
	return nil
}

func (d *Dispatcher) channelJoin(_ context.Context, s *Session, data json.RawMessage) error {
	var p protocol.ChannelPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	if d.Registry.JoinRoom(s.id, registry.ChannelRoom(p.ChannelID)) {
		d.Logger.Debug("joined channel", slog.String("conn", string(s.id)), slog.String("channel", p.ChannelID))
	}
	return nil
}

func (d *Dispatcher) channelLeave(_ context.Context, s *Session, data json.RawMessage) error {
	var p protocol.ChannelPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	if d.Registry.LeaveRoom(s.id, registry.ChannelRoom(p.ChannelID)) {
		d.Logger.Debug("left channel", slog.String("conn", string(s.id)), slog.String("channel", p.ChannelID))
	}
	return nil
}

func (d *Dispatcher) channelGetOnline(_ context.Context, s *Session, data json.RawMessage) error {
	var p protocol.ChannelPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	users := d.Registry.UsersIn(registry.ChannelRoom(p.ChannelID))
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = string(u)
	}
	slices.Sort(ids)
	return d.reply(s, protocol.EventChannelOnlineMembers, protocol.OnlineMembers{ChannelID: p.ChannelID, UserIDs: ids})
}

func (d *Dispatcher) messageSend(ctx context.Context, s *Session, data json.RawMessage) error {
	var p protocol.SendPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	user, _ := s.User()

	member, err := d.Messages.IsMember(ctx, p.ChannelID, user.ID)
	if err != nil {
		return persistence(err)
	}
	if !member {
		return validation(store.ErrNotMember)
	}

	content := d.Sanitizer.Sanitize(p.Content)
	if content == "" {
		return validation(errEmptyContent)
	}

	in := store.NewMessage{
		ChannelID: p.ChannelID,
		SenderID:  user.ID,
		Content:   content,
		Type:      p.Type,
	}
	if p.ParentID != "" {
		in.ParentID = &p.ParentID
	}
	msg, err := d.Messages.CreateMessage(ctx, in)
	if err != nil {
		return fromStore(err)
	}

	if msg.ParentID != nil {
		if err := d.Messages.IncrementThreadCount(ctx, *msg.ParentID); err != nil {
			d.Logger.Warn("increment thread count",
				slog.String("message", msg.ID),
				slog.String("parent", *msg.ParentID),
				slog.Any("error", err))
		}
	}

	d.Router.Broadcast(registry.ChannelRoom(msg.ChannelID), protocol.EventMessageNew, messageNew(msg, user))
	return nil
}

func (d *Dispatcher) messageUpdate(ctx context.Context, s *Session, data json.RawMessage) error {
	var p protocol.EditPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	content := d.Sanitizer.Sanitize(p.Content)
	if content == "" {
		return validation(errEmptyContent)
	}

	msg, err := d.Messages.UpdateMessage(ctx, p.MessageID, s.userID(), content)
	if err != nil {
		return fromStore(err)
	}

	d.Router.Broadcast(registry.ChannelRoom(msg.ChannelID), protocol.EventMessageUpdated, protocol.MessageUpdated{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		IsEdited:  msg.IsEdited,
		UpdatedAt: msg.UpdatedAt,
	})
	return nil
}

func (d *Dispatcher) messageDelete(ctx context.Context, s *Session, data json.RawMessage) error {
	var p protocol.DeletePayload
	if err := d.decode(data, &p); err != nil {
		return err
	}

	msg, err := d.Messages.DeleteMessage(ctx, p.MessageID, s.userID())
	if err != nil {
		return fromStore(err)
	}

	d.Router.Broadcast(registry.ChannelRoom(msg.ChannelID), protocol.EventMessageDeleted, protocol.MessageDeleted{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
	})
	return nil
}

func (d *Dispatcher) messageRead(ctx context.Context, s *Session, data json.RawMessage) error {
	var p protocol.ReadPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	userID := s.userID()

	if err := d.Messages.MarkRead(ctx, p.ChannelID, userID, p.MessageID); err != nil {
		return fromStore(err)
	}

	d.Router.Broadcast(registry.ChannelRoom(p.ChannelID), protocol.EventMessageReadUpdate, protocol.ReadUpdate{
		ChannelID: p.ChannelID,
		MessageID: p.MessageID,
		UserID:    userID,
	})
	return nil
}

func (d *Dispatcher) typing(active bool) handler {
	return func(_ context.Context, s *Session, data json.RawMessage) error {
		var p protocol.ChannelPayload
		if err := d.decode(data, &p); err != nil {
			return err
		}
		user, _ := s.User()

		update := protocol.TypingUpdate{
			ChannelID: p.ChannelID,
			UserID:    user.ID,
			IsTyping:  active,
		}
		if active {
			update.UserName = user.DisplayName
		}
		d.Router.Broadcast(registry.ChannelRoom(p.ChannelID), protocol.EventTypingUpdate, update, s.id)
		return nil
	}
}

func (d *Dispatcher) presenceStatus(ctx context.Context, s *Session, data json.RawMessage) error {
	var p protocol.StatusPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	user := registry.UserID(s.userID())
	// Stamp before checking: a disconnect that unregisters after this point
	// carries a later sequence and wins.
	seq := d.Registry.Stamp()
	if !d.Registry.IsOnline(user) {
		return validation(fmt.Errorf("status update for offline user %q", user))
	}
	d.Presence.Announce(ctx, presence.Update{
		UserID:        user,
		Status:        p.Status,
		StatusMessage: p.StatusMessage,
		Seq:           seq,
	})
	return nil
}

func (d *Dispatcher) presenceGet(ctx context.Context, s *Session, data json.RawMessage) error {
	var p protocol.PresenceQuery
	if err := d.decode(data, &p); err != nil {
		return err
	}
	return d.reply(s, protocol.EventPresenceList, d.Presence.Lookup(ctx, p.UserIDs))
}

func (d *Dispatcher) reply(s *Session, event string, data any) error {
	if err := d.Router.Send(s.id, event, data); err != nil {
		return &Failure{Kind: KindTransport, Err: err}
	}
	return nil
}

func messageNew(m store.Message, sender identity.User) protocol.MessageNew {
	return protocol.MessageNew{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		Type:        m.Type,
		ParentID:    m.ParentID,
		ThreadCount: m.ThreadCount,
		IsEdited:    m.IsEdited,
		CreatedAt:   m.CreatedAt,
		Sender: protocol.Sender{
			ID:          sender.ID,
			DisplayName: sender.DisplayName,
			AvatarURL:   sender.AvatarURL,
			AvatarColor: sender.AvatarColor,
		},
	}
}
