package dispatch

import (
	"context"
	"encoding/json"

	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/store"
)

type reactionOp func(ctx context.Context, ms store.MessageStore, messageID, userID, emoji string) error

func addReaction(ctx context.Context, ms store.MessageStore, messageID, userID, emoji string) error {
	return ms.AddReaction(ctx, messageID, userID, emoji)
}

func removeReaction(ctx context.Context, ms store.MessageStore, messageID, userID, emoji string) error {
	return ms.RemoveReaction(ctx, messageID, userID, emoji)
}

func toggleReaction(ctx context.Context, ms store.MessageStore, messageID, userID, emoji string) error {
	_, err := ms.ToggleReaction(ctx, messageID, userID, emoji)
	return err
}

// reaction builds the handler shared by reaction:add, reaction:remove and
// reaction:toggle. A deleted message still takes reactions. After the write the full aggregate is re-read once and
// rendered for each recipient, so has_reacted reflects the reader.
func (d *Dispatcher) reaction(op reactionOp) handler {
	return func(ctx context.Context, s *Session, data json.RawMessage) error {
		var p protocol.ReactionPayload
		if err := d.decode(data, &p); err != nil {
			return err
		}

		msg, err := d.Messages.GetMessage(ctx, p.MessageID)
		if err != nil {
			return fromStore(err)
		}
		if err := op(ctx, d.Messages, msg.ID, s.userID(), p.Emoji); err != nil {
			return fromStore(err)
		}

		rows, err := d.Messages.ListReactions(ctx, msg.ID)
		if err != nil {
			return persistence(err)
		}
		agg := aggregateReactions(rows)

		d.Router.BroadcastFunc(registry.ChannelRoom(msg.ChannelID), protocol.EventReactionUpdate, func(rc registry.Recipient) any {
			return protocol.ReactionUpdate{
				MessageID: msg.ID,
				ChannelID: msg.ChannelID,
				Reactions: agg.view(string(rc.UserID)),
			}
		})
		return nil
	}
}

// aggregate groups reaction rows by emoji, in order of each emoji's first
// row.
type aggregate struct {
	emojis []string
	users  map[string]map[string]struct{}
}

func aggregateReactions(rows []store.Reaction) aggregate {
	agg := aggregate{users: make(map[string]map[string]struct{})}
	for _, r := range rows {
		set, ok := agg.users[r.Emoji]
		if !ok {
			set = make(map[string]struct{})
			agg.users[r.Emoji] = set
			agg.emojis = append(agg.emojis, r.Emoji)
		}
		set[r.UserID] = struct{}{}
	}
	return agg
}

// view renders the aggregate as seen by viewer. It never returns nil so the
// payload always carries a list.
func (a aggregate) view(viewer string) []protocol.ReactionSummary {
	out := make([]protocol.ReactionSummary, 0, len(a.emojis))
	for _, emoji := range a.emojis {
		set := a.users[emoji]
		_, mine := set[viewer]
		out = append(out, protocol.ReactionSummary{
			Emoji:      emoji,
			Count:      len(set),
			HasReacted: mine,
		})
	}
	return out
}
