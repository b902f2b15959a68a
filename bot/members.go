package bot

import (
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"membergate/entity"
	"membergate/lib/sl"
)

func anyChatMember(_ *tgbotapi.ChatMemberUpdated) bool { return true }

func anyJoinRequest(_ *tgbotapi.ChatJoinRequest) bool { return true }

func serviceJoin(msg *tgbotapi.Message) bool { return len(msg.NewChatMembers) > 0 }

func serviceLeave(msg *tgbotapi.Message) bool { return msg.LeftChatMember != nil }

func privateContact(msg *tgbotapi.Message) bool {
	return msg.Contact != nil && msg.Chat.Type == "private"
}

// onChatMember consumes authoritative per-update membership transitions.
func (t *TgBot) onChatMember(b *tgbotapi.Bot, ctx *ext.Context) error {
	upd := ctx.ChatMember
	if upd == nil {
		return nil
	}
	member := upd.NewChatMember.MergeChatMember()
	if member.User.IsBot {
		return nil
	}

	t.pipe.ObserveChat(entity.Chat{
		TelegramId: upd.Chat.Id,
		Kind:       upd.Chat.Type,
		Title:      upd.Chat.Title,
	})
	t.rememberUser(&member.User)

	invite := ""
	if upd.InviteLink != nil {
		invite = upd.InviteLink.InviteLink
	}
	old := upd.OldChatMember.MergeChatMember()

	tr := t.pipe.Normalizer.FromStatusChange(
		upd.Chat.Id, member.User.Id,
		old.Status, member.Status,
		time.Unix(upd.Date, 0), invite,
	)
	if tr != nil {
		t.pipe.HandleTransition(tr, upd.Chat.Title)
	}
	return nil
}

// onServiceJoin consumes new-member service messages. These are the
// degraded fallback signal: honored only in public groups, and only while
// the chat has never produced an authoritative update.
func (t *TgBot) onServiceJoin(b *tgbotapi.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	if !isPublicGroup(&msg.Chat) {
		return nil
	}
	t.pipe.ObserveChat(entity.Chat{
		TelegramId: msg.Chat.Id,
		Kind:       msg.Chat.Type,
		Title:      msg.Chat.Title,
	})
	for i := range msg.NewChatMembers {
		user := &msg.NewChatMembers[i]
		if user.IsBot {
			continue
		}
		t.rememberUser(user)
		tr := t.pipe.Normalizer.FromServiceEvent(msg.Chat.Id, user.Id, entity.TransitionJoin, time.Unix(msg.Date, 0))
		if tr != nil {
			t.pipe.HandleTransition(tr, msg.Chat.Title)
		}
	}
	return nil
}

func (t *TgBot) onServiceLeave(b *tgbotapi.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	user := msg.LeftChatMember
	if user.IsBot || !isPublicGroup(&msg.Chat) {
		return nil
	}
	tr := t.pipe.Normalizer.FromServiceEvent(msg.Chat.Id, user.Id, entity.TransitionLeave, time.Unix(msg.Date, 0))
	if tr != nil {
		t.pipe.HandleTransition(tr, msg.Chat.Title)
	}
	return nil
}

func (t *TgBot) onJoinRequest(b *tgbotapi.Bot, ctx *ext.Context) error {
	req := ctx.ChatJoinRequest
	if req == nil {
		return nil
	}
	t.pipe.ObserveChat(entity.Chat{
		TelegramId: req.Chat.Id,
		Kind:       req.Chat.Type,
		Title:      req.Chat.Title,
	})
	t.pipe.HandleJoinRequest(req.Chat.Id, req.From.Id, req.From.IsBot)
	return nil
}

func isPublicGroup(chat *tgbotapi.Chat) bool {
	if chat.Type != "group" && chat.Type != "supergroup" {
		return false
	}
	return chat.Username != ""
}

// rememberUser refreshes the profile row; never touches the phone.
func (t *TgBot) rememberUser(user *tgbotapi.User) {
	err := t.db.UpsertUser(&entity.User{
		TelegramId: user.Id,
		Username:   user.Username,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
	})
	if err != nil {
		t.log.Warn("saving user profile", sl.User(user.Id), sl.Err(err))
	}
}
