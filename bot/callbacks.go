package bot

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"membergate/internal/gate"
	"membergate/lib/sl"
)

// onRecheckChat handles the "I joined" button under a per-chat force-join
// prompt. The payload carries the user the prompt was issued for; anyone
// else pressing the button is refused.
func (t *TgBot) onRecheckChat(b *tgbotapi.Bot, ctx *ext.Context) error {
	cb := ctx.CallbackQuery
	chatId, userId, ok := gate.ParseRecheckChat(cb.Data)
	if !ok {
		return t.answer(b, cb, "This button has expired", false)
	}
	if cb.From.Id != userId {
		return t.answer(b, cb, "This button is not for you", true)
	}

	if !t.pipe.ForceJoin.RecheckChat(chatId, userId) {
		return t.answer(b, cb, "You have not joined all required chats yet", true)
	}

	t.removePrompt(cb)
	return t.answer(b, cb, "Thank you, you can write in the chat now", false)
}

// onRecheckGlobal handles the "I joined" button under a global gate prompt.
func (t *TgBot) onRecheckGlobal(b *tgbotapi.Bot, ctx *ext.Context) error {
	cb := ctx.CallbackQuery
	userId, ok := gate.ParseRecheckGlobal(cb.Data)
	if !ok {
		return t.answer(b, cb, "This button has expired", false)
	}
	if cb.From.Id != userId {
		return t.answer(b, cb, "This button is not for you", true)
	}

	if !t.pipe.ForceJoin.RecheckGlobal(userId) {
		return t.answer(b, cb, "You have not joined all required chats yet", true)
	}

	t.removePrompt(cb)
	return t.answer(b, cb, "Thank you, you are all set", false)
}

func (t *TgBot) answer(b *tgbotapi.Bot, cb *tgbotapi.CallbackQuery, text string, alert bool) error {
	_, err := cb.Answer(b, &tgbotapi.AnswerCallbackQueryOpts{
		Text:      text,
		ShowAlert: alert,
	})
	if err != nil {
		t.log.Warn("answering callback", sl.User(cb.From.Id), sl.Err(err))
	}
	return nil
}

// removePrompt deletes the message the pressed button was attached to.
func (t *TgBot) removePrompt(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatId := cb.Message.GetChat().Id
	messageId := cb.Message.GetMessageId()
	if err := t.DeleteMessage(chatId, messageId); err != nil {
		t.log.Debug("removing prompt", sl.Chat(chatId), sl.Err(err))
	}
}
