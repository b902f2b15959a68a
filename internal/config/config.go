package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"true"`
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"membergate"`
}

type TelegramConfig struct {
	ApiKey  string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	OwnerId int64  `yaml:"owner_id" env-default:"0"`
}

// GateConfig carries the timing knobs of the membership pipeline.
// Defaults match production behaviour; tests inject their own values.
type GateConfig struct {
	DedupWindowSec      int `yaml:"dedup_window_sec" env-default:"300"`
	RaidWindowSec       int `yaml:"raid_window_sec" env-default:"30"`
	RaidThreshold       int `yaml:"raid_threshold" env-default:"30"`
	RaidCooldownSec     int `yaml:"raid_cooldown_sec" env-default:"300"`
	VerifyTTLSec        int `yaml:"verify_ttl_sec" env-default:"120"`
	PromptFadeSec       int `yaml:"prompt_fade_sec" env-default:"130"`
	ConfirmationFadeSec int `yaml:"confirmation_fade_sec" env-default:"120"`
}

type ApiConfig struct {
	Enabled bool `yaml:"enabled" env-default:"true"`
}

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Gate     GateConfig     `yaml:"gate"`
	Api      ApiConfig      `yaml:"api"`
	Listen   Listen         `yaml:"listen"`
	Env      string         `yaml:"env" env-default:"local"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
