// Word Quizzle session server: a single-reactor TCP service (spec §4.4)
// fronted by a cobra command, configured through viper-layered flags, an
// optional wordquizzle.yaml, and WORDQUIZZLE_* environment variables —
// replacing the teacher's bare flag.String/flag.Int setup
// (chat-go/cmd/server/main.go) now that there are six independent knobs
// plus a data directory to resolve (spec §3/§6).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wordquizzle/internal/config"
	"wordquizzle/internal/match"
	"wordquizzle/internal/presence"
	"wordquizzle/internal/registration"
	"wordquizzle/internal/server"
	"wordquizzle/internal/store"
	"wordquizzle/internal/wordsource"
)

func main() {
	v := config.New()
	root := newRootCmd(v)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	defaults := config.Defaults()
	cmd := &cobra.Command{
		Use:   "wordquizzled",
		Short: "Word Quizzle session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", defaults.Addr, "TCP address the session reactor listens on")
	flags.String("registration-addr", defaults.RegistrationAddr, "TCP address the registration RPC service listens on")
	flags.String("data", defaults.DataDir, "directory for persistent storage")
	flags.Int("workers", defaults.Workers, "number of request-handler worker goroutines")
	flags.Int("match-minutes", int(defaults.MatchDuration.Minutes()), "duel wall-clock deadline, in minutes")
	flags.Int("accept-seconds", int(defaults.AcceptTimeout.Seconds()), "invitation accept window, in seconds")
	flags.Int("match-words", defaults.WordsPerMatch, "number of words dealt out per duel")

	for _, name := range []string{"addr", "registration-addr", "data", "workers", "match-minutes", "accept-seconds", "match-words"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	return cmd
}

func run(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("main: init logger: %w", err)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("main: create data dir: %w", err)
	}

	st, err := store.New(cfg.DataDir+"/users.json", log)
	if err != nil {
		return fmt.Errorf("main: init store: %w", err)
	}
	pr := presence.New()
	ws, err := wordsource.New(0)
	if err != nil {
		return fmt.Errorf("main: init word source: %w", err)
	}
	mo := match.New(log, st, pr, ws, match.Config{
		AcceptTimeout: cfg.AcceptTimeout,
		MatchDuration: cfg.MatchDuration,
		WordsPerMatch: cfg.WordsPerMatch,
	})

	srv := server.New(log, server.Config{
		Addr:          cfg.Addr,
		Workers:       cfg.Workers,
		QueueCapacity: cfg.Workers * 4,
	}, st, pr, mo)

	regSvc := registration.New(log, st)

	// The session reactor and the registration RPC listener are two
	// independent long-running services; errgroup.Group reports whichever
	// fails first instead of a bare "go func(){}()" swallowing the error
	// (spec §2 treats RegistrationService as its own component, not a
	// goroutine hanging off the session server).
	var g errgroup.Group
	g.Go(func() error {
		log.Info("main: starting session server", zap.String("addr", cfg.Addr))
		return srv.ListenAndServe(cfg.Addr)
	})
	g.Go(func() error {
		return registration.ListenAndServe(log, regSvc, cfg.RegistrationAddr)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-quit:
		log.Info("main: shutting down")
		srv.Stop()
		return nil
	}
}
