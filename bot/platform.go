package bot

import (
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"membergate/entity"
	"membergate/internal/gate"
)

// The TgBot is the pipeline's gate.Platform: every side effect the gates
// request is executed here against the Bot API.

func mutedPermissions() tgbotapi.ChatPermissions {
	return tgbotapi.ChatPermissions{}
}

func memberPermissions() tgbotapi.ChatPermissions {
	return tgbotapi.ChatPermissions{
		CanSendMessages:       true,
		CanSendAudios:         true,
		CanSendDocuments:      true,
		CanSendPhotos:         true,
		CanSendVideos:         true,
		CanSendVideoNotes:     true,
		CanSendVoiceNotes:     true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
		CanInviteUsers:        true,
	}
}

// MemberStatus resolves membership in a chat referenced by numeric id or
// public @username. Username lookups go through a raw API request: the
// typed client only accepts numeric chat ids.
func (t *TgBot) MemberStatus(chatRef string, userId int64) (entity.MemberStatus, error) {
	if chatId, err := strconv.ParseInt(chatRef, 10, 64); err == nil {
		member, err := t.api.GetChatMember(chatId, userId, nil)
		if err != nil {
			return entity.StatusOther, fmt.Errorf("get chat member: %w", err)
		}
		return entity.NormalizeStatus(member.MergeChatMember().Status), nil
	}

	params := map[string]string{
		"chat_id": chatRef,
		"user_id": strconv.FormatInt(userId, 10),
	}
	raw, err := t.api.Request("getChatMember", params, nil, nil)
	if err != nil {
		return entity.StatusOther, fmt.Errorf("get chat member %s: %w", chatRef, err)
	}
	var member struct {
		Status string `json:"status"`
	}
	if err = json.Unmarshal(raw, &member); err != nil {
		return entity.StatusOther, fmt.Errorf("decoding chat member: %w", err)
	}
	return entity.NormalizeStatus(member.Status), nil
}

func (t *TgBot) RestrictMessaging(chatId, userId int64, allowed bool) error {
	permissions := mutedPermissions()
	if allowed {
		permissions = memberPermissions()
	}
	_, err := t.api.RestrictChatMember(chatId, userId, permissions, nil)
	if err != nil {
		return fmt.Errorf("restrict chat member: %w", err)
	}
	return nil
}

func (t *TgBot) BanUser(chatId, userId int64) error {
	_, err := t.api.BanChatMember(chatId, userId, nil)
	if err != nil {
		return fmt.Errorf("ban chat member: %w", err)
	}
	return nil
}

func (t *TgBot) SendDirect(userId int64, text string, actions []gate.Action) (int64, error) {
	return t.send(userId, text, actions)
}

func (t *TgBot) SendChat(chatId int64, text string, actions []gate.Action) (int64, error) {
	return t.send(chatId, text, actions)
}

func (t *TgBot) send(chatId int64, text string, actions []gate.Action) (int64, error) {
	opts := &tgbotapi.SendMessageOpts{}
	if keyboard := actionKeyboard(actions); keyboard != nil {
		opts.ReplyMarkup = *keyboard
	}
	msg, err := t.api.SendMessage(chatId, text, opts)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return msg.MessageId, nil
}

func (t *TgBot) DeleteMessage(chatId, messageId int64) error {
	_, err := t.api.DeleteMessage(chatId, messageId, nil)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (t *TgBot) ApproveJoinRequest(chatId, userId int64) error {
	_, err := t.api.ApproveChatJoinRequest(chatId, userId, nil)
	if err != nil {
		return fmt.Errorf("approve join request: %w", err)
	}
	return nil
}

func (t *TgBot) DeclineJoinRequest(chatId, userId int64) error {
	_, err := t.api.DeclineChatJoinRequest(chatId, userId, nil)
	if err != nil {
		return fmt.Errorf("decline join request: %w", err)
	}
	return nil
}

func (t *TgBot) DeepLink(payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", t.api.User.Username, payload)
}

func actionKeyboard(actions []gate.Action) *tgbotapi.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, action := range actions {
		button := tgbotapi.InlineKeyboardButton{Text: action.Label}
		if action.Callback != "" {
			button.CallbackData = action.Callback
		} else {
			button.Url = action.URL
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{button})
	}
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}
