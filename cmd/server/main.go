package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membergate/bot"
	"membergate/internal/config"
	"membergate/internal/database"
	"membergate/internal/gate"
	"membergate/internal/http-server/api"
	"membergate/lib/logger"
	"membergate/lib/sl"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.Setup(conf.Env, *logPath)
	log.Info("starting membergate", slog.String("config", *configPath), slog.String("env", conf.Env))

	mongo := database.NewMongoClient(conf)
	if mongo == nil {
		log.Error("database is not enabled; nothing to do")
		return
	}

	tgBot, err := bot.NewTgBot(conf.Telegram.ApiKey, mongo, log, bot.BotConfig{
		OwnerId: conf.Telegram.OwnerId,
	})
	if err != nil {
		log.Error("creating telegram bot", sl.Err(err))
		return
	}

	pipeline := gate.New(log, mongo, tgBot, gate.Config{
		DedupWindow:   seconds(conf.Gate.DedupWindowSec),
		RaidWindow:    seconds(conf.Gate.RaidWindowSec),
		RaidThreshold: conf.Gate.RaidThreshold,
		RaidCooldown:  seconds(conf.Gate.RaidCooldownSec),
		VerifyTTL:     seconds(conf.Gate.VerifyTTLSec),
		PromptFade:    seconds(conf.Gate.PromptFadeSec),
		ConfirmFade:   seconds(conf.Gate.ConfirmationFadeSec),
	})
	tgBot.AttachPipeline(pipeline)

	go func() {
		if err = tgBot.Start(); err != nil {
			log.Error("telegram bot stopped", sl.Err(err))
		}
	}()

	if conf.Api.Enabled {
		go func() {
			if err = api.New(conf, log, mongo); err != nil {
				log.Error("api server stopped", sl.Err(err))
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	tgBot.Stop()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
