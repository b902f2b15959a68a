package bot

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/google/uuid"

	"membergate/entity"
	"membergate/internal/gate"
	"membergate/lib/sl"
)

func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat.Type != "private" {
		return nil
	}
	userId := ctx.EffectiveUser.Id
	t.rememberUser(ctx.EffectiveUser)

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) > 1 && strings.HasPrefix(args[1], gate.DeepLinkVerifyPrefix) {
		return t.startVerification(userId, args[1])
	}

	if userId != t.config.OwnerId && !t.enforceGlobal(userId) {
		return nil
	}

	t.plainResponse(userId, "Hello\\! I keep this community's chats safe\\. Use /help to see what I can do\\.")
	return nil
}

// startVerification handles a /start opened through a verification deep
// link. The payload carries the id the prompt was issued for; a link
// forwarded to someone else proves nothing and is refused.
func (t *TgBot) startVerification(userId int64, payload string) error {
	target, err := strconv.ParseInt(strings.TrimPrefix(payload, gate.DeepLinkVerifyPrefix), 10, 64)
	if err != nil || target != userId {
		t.plainResponse(userId, "This verification link was issued for another account\\.")
		return nil
	}

	user, err := t.db.GetUser(userId)
	if err != nil {
		t.reportError(userId, "/start verify", err)
		return nil
	}
	if user != nil && user.HasIdentity() {
		t.pipe.CompleteVerification(userId)
		t.plainResponse(userId, "You are already verified\\. Welcome back\\!")
		return nil
	}

	t.requestContact(userId)
	return nil
}

// requestContact asks for the user's own contact via a one-time reply
// keyboard. Sharing it is the identity proof the join gate waits for.
func (t *TgBot) requestContact(userId int64) {
	_, err := t.api.SendMessage(userId,
		"To verify you are a real person, please share your phone number using the button below\\.",
		&tgbotapi.SendMessageOpts{
			ParseMode: "MarkdownV2",
			ReplyMarkup: tgbotapi.ReplyKeyboardMarkup{
				Keyboard: [][]tgbotapi.KeyboardButton{
					{{Text: "Share my phone number", RequestContact: true}},
				},
				ResizeKeyboard:  true,
				OneTimeKeyboard: true,
			},
		})
	if err != nil {
		t.log.Warn("requesting contact", sl.User(userId), sl.Err(err))
	}
}

// onContact completes identity verification from a shared contact.
func (t *TgBot) onContact(_ *tgbotapi.Bot, ctx *ext.Context) error {
	userId := ctx.EffectiveUser.Id
	contact := ctx.EffectiveMessage.Contact

	if contact.UserId != userId {
		t.plainResponse(userId, "Please share your own contact, not someone else's\\.")
		return nil
	}

	if err := t.db.SetUserPhone(userId, contact.PhoneNumber); err != nil {
		t.reportError(userId, "contact", err)
		return nil
	}

	chats := t.pipe.CompleteVerification(userId)
	t.log.With(sl.User(userId)).Info("identity verified", slog.Int("chats_unlocked", len(chats)))

	_, err := t.api.SendMessage(userId,
		"Thank you, you are verified\\!",
		&tgbotapi.SendMessageOpts{
			ParseMode:   "MarkdownV2",
			ReplyMarkup: tgbotapi.ReplyKeyboardRemove{RemoveKeyboard: true},
		})
	if err != nil {
		t.log.Warn("confirming verification", sl.User(userId), sl.Err(err))
	}

	if userId != t.config.OwnerId {
		t.enforceGlobal(userId)
	}
	return nil
}

// enforceGlobal runs the global force-join gate for a private interaction.
// Returns true when the user may proceed.
func (t *TgBot) enforceGlobal(userId int64) bool {
	return t.pipe.ForceJoin.EnforceGlobal(userId)
}

// require adds a required target. In a group the target gates that group;
// in private the owner manages the global set.
func (t *TgBot) require(_ *tgbotapi.Bot, ctx *ext.Context) error {
	scope, replyTo, ok := t.targetScope(ctx)
	if !ok {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(replyTo, "Usage: `/require @channel` or `/require @channel https://t\\.me/joinlink`")
		return nil
	}
	target := &entity.RequiredTarget{
		ChatId:  scope,
		Target:  args[1],
		AddedBy: ctx.EffectiveUser.Id,
	}
	if len(args) > 2 {
		target.JoinURL = args[2]
	}

	if err := t.db.AddTarget(target); err != nil {
		t.reportError(replyTo, "/require", err)
		return nil
	}
	t.plainResponse(replyTo, fmt.Sprintf("Added required target: %s", Sanitize(target.Target)))
	return nil
}

// unrequire removes one required target, or all of them without an argument.
func (t *TgBot) unrequire(_ *tgbotapi.Bot, ctx *ext.Context) error {
	scope, replyTo, ok := t.targetScope(ctx)
	if !ok {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		if err := t.db.ClearTargets(scope); err != nil {
			t.reportError(replyTo, "/unrequire", err)
			return nil
		}
		t.plainResponse(replyTo, "All required targets removed")
		return nil
	}

	if err := t.db.RemoveTarget(scope, args[1]); err != nil {
		t.reportError(replyTo, "/unrequire", err)
		return nil
	}
	t.plainResponse(replyTo, fmt.Sprintf("Removed required target: %s", Sanitize(args[1])))
	return nil
}

// campaign registers an invite link under a campaign label for this group.
func (t *TgBot) campaign(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chat := ctx.EffectiveChat
	userId := ctx.EffectiveUser.Id
	if chat.Type == "private" {
		t.plainResponse(userId, "Run this command in the group the campaign belongs to\\.")
		return nil
	}
	if !t.canManage(chat.Id, userId) {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 3 {
		t.plainResponse(chat.Id, "Usage: `/campaign https://t\\.me/\\+code label`")
		return nil
	}
	link := &entity.CampaignLink{
		Id:         uuid.NewString(),
		ChatId:     chat.Id,
		InviteLink: args[1],
		Label:      strings.Join(args[2:], " "),
		CreatedBy:  userId,
	}

	if err := t.db.CreateCampaignLink(link); err != nil {
		t.reportError(chat.Id, "/campaign", err)
		return nil
	}
	t.plainResponse(chat.Id, fmt.Sprintf("Campaign registered: %s", Sanitize(link.Label)))
	return nil
}

// stats posts the last week's join/leave ledger and the month's top
// campaigns for the current group.
func (t *TgBot) stats(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chat := ctx.EffectiveChat
	userId := ctx.EffectiveUser.Id
	if chat.Type == "private" {
		t.plainResponse(userId, "Run this command in the group you want stats for\\.")
		return nil
	}
	if !t.canManage(chat.Id, userId) {
		return nil
	}

	series, err := t.db.GetLastDays(chat.Id, 7)
	if err != nil {
		t.reportError(chat.Id, "/stats", err)
		return nil
	}
	top, err := t.db.TopCampaigns(chat.Id, time.Now().AddDate(0, 0, -30), 5)
	if err != nil {
		t.reportError(chat.Id, "/stats", err)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("*Last 7 days*\n")
	for _, day := range series {
		sb.WriteString(fmt.Sprintf("%s: \\+%d / \\-%d\n", Sanitize(day.Day), day.Joins, day.Leaves))
	}
	if len(top) > 0 {
		sb.WriteString("\n*Top campaigns, 30 days*\n")
		for _, c := range top {
			sb.WriteString(fmt.Sprintf("%s: %d\n", Sanitize(c.Label), c.Joins))
		}
	}
	t.plainResponse(chat.Id, sb.String())
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	text := "*Commands*\n" +
		"/require target \\- add a chat users must join\n" +
		"/unrequire \\[target\\] \\- remove one or all required chats\n" +
		"/campaign link label \\- attribute joins via an invite link\n" +
		"/stats \\- join/leave ledger and top campaigns\n"
	t.plainResponse(chatId, text)
	return nil
}

// targetScope resolves where /require and /unrequire apply and whether the
// caller may use them. Group commands need chat admin rights; the global
// set is owner-only, managed in private.
func (t *TgBot) targetScope(ctx *ext.Context) (scope int64, replyTo int64, ok bool) {
	chat := ctx.EffectiveChat
	userId := ctx.EffectiveUser.Id

	if chat.Type == "private" {
		if userId != t.config.OwnerId {
			return 0, 0, false
		}
		return entity.ScopeGlobal, userId, true
	}
	if !t.canManage(chat.Id, userId) {
		return 0, 0, false
	}
	return chat.Id, chat.Id, true
}

func (t *TgBot) canManage(chatId, userId int64) bool {
	if userId == t.config.OwnerId {
		return true
	}
	member, err := t.api.GetChatMember(chatId, userId, nil)
	if err != nil {
		t.log.Warn("checking admin rights", sl.Chat(chatId), sl.User(userId), sl.Err(err))
		return false
	}
	return entity.NormalizeStatus(member.MergeChatMember().Status).CanManage()
}
