// Package bot implements the Telegram front of the membership gate.
//
// Architecture overview:
//   - tgbot.go: TgBot struct, lifecycle (Start/Stop), Database interface
//   - members.go: membership update handlers: chat_member transitions,
//     service-message fallback, chat join requests
//   - commands.go: commands: /start (incl. verification deep links),
//     /require, /unrequire, /campaign, /stats, /help
//   - callbacks.go: "I joined" recheck callback handlers
//   - guard.go: private-chat intercept for globally gated users
//   - platform.go: gate.Platform implementation over the Bot API
//   - helpers.go: shared utilities: Sanitize, plainResponse, reportError
//
// All gating decisions live in internal/gate; this package only converts
// raw updates into canonical transitions and executes platform actions.
package bot

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"

	"membergate/entity"
	"membergate/internal/gate"
	"membergate/lib/sl"
)

// BotConfig holds Telegram-specific configuration loaded from the YAML
// config file.
type BotConfig struct {
	OwnerId int64
}

// Database defines the storage operations the bot depends on beyond what
// the pipeline already persists. Implemented by internal/database/mongo.go.
type Database interface {
	GetUser(userId int64) (*entity.User, error)
	UpsertUser(user *entity.User) error
	SetUserPhone(userId int64, phone string) error

	ListTargets(chatId int64) ([]*entity.RequiredTarget, error)
	AddTarget(target *entity.RequiredTarget) error
	RemoveTarget(chatId int64, target string) error
	ClearTargets(chatId int64) error

	CreateCampaignLink(link *entity.CampaignLink) error
	ListCampaignLinks(chatId int64) ([]*entity.CampaignLink, error)

	GetLastDays(chatId int64, days int) ([]*entity.DayStat, error)
	TopCampaigns(chatId int64, since time.Time, limit int64) ([]*entity.CampaignCount, error)
}

// TgBot is the central Telegram bot instance. It owns the long-polling
// loop and feeds every membership signal into the gating pipeline.
type TgBot struct {
	log     *slog.Logger
	api     *tgbotapi.Bot
	db      Database
	pipe    *gate.Pipeline
	updater *ext.Updater
	config  BotConfig
}

func NewTgBot(apiKey string, db Database, log *slog.Logger, cfg BotConfig) (*TgBot, error) {
	tgBot := &TgBot{
		log:    log.With(sl.Module("tgbot")),
		db:     db,
		config: cfg,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

// AttachPipeline wires the gating pipeline. Must be called before Start;
// split from the constructor because the pipeline needs the bot as its
// Platform.
func (t *TgBot) AttachPipeline(pipe *gate.Pipeline) {
	t.pipe = pipe
}

func (t *TgBot) Start() error {
	if t.pipe == nil {
		return fmt.Errorf("pipeline not attached")
	}

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	// The global gate intercept runs before everything else; it decides
	// whether a private update is allowed to reach the handlers below.
	dispatcher.AddHandlerToGroup(handlers.NewMessage(t.guardFilter, t.guardMessage), -1)

	// Membership signals
	dispatcher.AddHandler(handlers.NewChatMember(anyChatMember, t.onChatMember))
	dispatcher.AddHandler(handlers.NewChatJoinRequest(anyJoinRequest, t.onJoinRequest))
	dispatcher.AddHandler(handlers.NewMessage(serviceJoin, t.onServiceJoin))
	dispatcher.AddHandler(handlers.NewMessage(serviceLeave, t.onServiceLeave))

	// Commands
	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("require", t.require))
	dispatcher.AddHandler(handlers.NewCommand("unrequire", t.unrequire))
	dispatcher.AddHandler(handlers.NewCommand("campaign", t.campaign))
	dispatcher.AddHandler(handlers.NewCommand("stats", t.stats))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))

	// Identity proof: a shared contact in private completes verification
	dispatcher.AddHandler(handlers.NewMessage(privateContact, t.onContact))

	// Callback query handlers
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(gate.CallbackRecheckChat), t.onRecheckChat))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(gate.CallbackRecheckGlobal), t.onRecheckGlobal))

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			// chat_member updates are not delivered unless asked for
			AllowedUpdates: []string{
				"message", "callback_query",
				"chat_member", "my_chat_member", "chat_join_request",
			},
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	t.log.Info("telegram bot started", slog.String("username", t.api.User.Username))

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
}
