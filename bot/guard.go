package bot

import (
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"membergate/lib/sl"
)

// guardFilter selects private messages subject to the global gate.
// Verification traffic always passes: /start carries deep-link payloads
// and a shared contact is the identity proof itself.
func (t *TgBot) guardFilter(msg *tgbotapi.Message) bool {
	if msg.Chat.Type != "private" {
		return false
	}
	if msg.Contact != nil {
		return false
	}
	return !strings.HasPrefix(msg.Text, "/start")
}

// guardMessage intercepts private messages from globally gated users.
// Instead of serving the message it repeats the join prompt and stops the
// update from reaching any other handler. Users the gate has not seen
// since startup are re-evaluated live, so a restart does not drop the
// guard.
func (t *TgBot) guardMessage(_ *tgbotapi.Bot, ctx *ext.Context) error {
	userId := ctx.EffectiveUser.Id
	if userId == t.config.OwnerId {
		return nil
	}
	if t.pipe.ForceJoin.EnsureGlobal(userId) {
		return nil
	}

	t.log.Debug("private message intercepted", sl.User(userId))
	return ext.EndGroups
}
