// Package config resolves Word Quizzle's startup knobs the way the pack's
// cobra/viper-based services do: cobra owns the command surface, viper
// layers flags over an optional config file and environment variables. The
// teacher repo reads these from bare `flag` (chat-go/cmd/server/main.go);
// this repo has six independent knobs plus a data directory, enough surface
// to earn the heavier layered resolution.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob spec §6 exposes at startup.
type Config struct {
	Addr             string        // TCP address the session reactor listens on
	RegistrationAddr string        // TCP address the net/rpc registration service listens on
	DataDir          string        // directory for users.json
	Workers          int           // worker pool size
	MatchDuration    time.Duration // duel wall-clock deadline
	AcceptTimeout    time.Duration // invitation accept window
	WordsPerMatch    int           // words dealt out per duel
}

// Defaults mirror spec.md §6's stated defaults.
func Defaults() Config {
	return Config{
		Addr:             ":8888",
		RegistrationAddr: ":5678",
		DataDir:          "./data",
		Workers:          8,
		MatchDuration:    1 * time.Minute,
		AcceptTimeout:    15 * time.Second,
		WordsPerMatch:    5,
	}
}

// Load resolves a Config from v, which the caller has already bound to the
// cobra command's flags (BindPFlag) and pointed at an optional config file
// and the WORDQUIZZLE_ environment prefix.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()
	cfg.Addr = v.GetString("addr")
	cfg.RegistrationAddr = v.GetString("registration-addr")
	cfg.DataDir = v.GetString("data")
	cfg.Workers = v.GetInt("workers")
	cfg.WordsPerMatch = v.GetInt("match-words")

	matchMinutes := v.GetInt("match-minutes")
	acceptSeconds := v.GetInt("accept-seconds")
	cfg.MatchDuration = time.Duration(matchMinutes) * time.Minute
	cfg.AcceptTimeout = time.Duration(acceptSeconds) * time.Second

	if cfg.Workers <= 0 {
		return Config{}, fmt.Errorf("config: workers must be positive, got %d", cfg.Workers)
	}
	if cfg.WordsPerMatch <= 0 {
		return Config{}, fmt.Errorf("config: match-words must be positive, got %d", cfg.WordsPerMatch)
	}
	if cfg.MatchDuration <= 0 {
		return Config{}, fmt.Errorf("config: match-minutes must be positive, got %d", matchMinutes)
	}
	if cfg.AcceptTimeout <= 0 {
		return Config{}, fmt.Errorf("config: accept-seconds must be positive, got %d", acceptSeconds)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return Config{}, fmt.Errorf("config: data directory must not be empty")
	}
	return cfg, nil
}

// New builds a viper instance wired for flag/env/file layering: flags win,
// then WORDQUIZZLE_* environment variables, then ./wordquizzle.yaml.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("wordquizzle")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("wordquizzle")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = v.ReadInConfig() // absent config file is not an error
	return v
}
