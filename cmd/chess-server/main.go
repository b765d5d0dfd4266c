package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mincheol-dev/chessmatch/internal/advisor"
	"github.com/mincheol-dev/chessmatch/internal/api"
	"github.com/mincheol-dev/chessmatch/internal/archive"
	appcfg "github.com/mincheol-dev/chessmatch/internal/config"
	"github.com/mincheol-dev/chessmatch/internal/obslog"
	"github.com/mincheol-dev/chessmatch/internal/room"
	"github.com/mincheol-dev/chessmatch/internal/rules"
	"github.com/mincheol-dev/chessmatch/internal/session"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	oracle := rules.NewOracle()
	registry := room.NewRegistry(oracle)

	// Advisor is optional: without one the server still coordinates
	// human games, automated seats just never move.
	var adv advisor.Advisor
	switch {
	case cfg.AdvisorURL != "":
		adv = advisor.NewRemote(cfg.AdvisorURL)
		obslog.L().Info("advisor_remote", zap.String("url", cfg.AdvisorURL))
	case cfg.StockfishPath != "":
		eng, err := advisor.NewEngine(cfg.StockfishPath, 0)
		if err != nil {
			obslog.L().Warn("advisor_init_failed", zap.String("path", cfg.StockfishPath), zap.Error(err))
		} else {
			adv = eng
			obslog.L().Info("advisor_engine", zap.String("path", cfg.StockfishPath))
		}
	default:
		obslog.L().Info("advisor_disabled")
	}

	var recorders []session.Recorder
	var journal *archive.Journal
	if cfg.RedisURL != "" {
		journal, err = archive.NewJournal(cfg.RedisURL, time.Duration(cfg.ArchiveTTLSec)*time.Second)
		if err != nil {
			log.Fatalf("journal init error: %v", err)
		}
		recorders = append(recorders, journal)
	}
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("repository init error: %v", err)
		}
		recorders = append(recorders, repo)
	}

	coord := session.New(registry, oracle, adv, session.Options{
		AutomatedNames: cfg.AutomatedNames,
		Budget: advisor.Budget{
			Depth:    cfg.AdvisorDepth,
			MoveTime: time.Duration(cfg.AdvisorMoveTimeMillis) * time.Millisecond,
		},
		FallbackLegal: cfg.AdvisorFallbackLegal,
	}, recorders...)

	router := api.NewRouter(coord, registry, adv != nil)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if adv != nil {
		_ = adv.Close()
	}
	if journal != nil {
		_ = journal.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
	obslog.L().Info("server_stopped")
}
