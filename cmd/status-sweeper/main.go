// status-sweeper dispara periodicamente o sweep de transições por tempo via
// API do arena-service. O sweep é idempotente, então reexecuções e
// sobreposições são inofensivas.
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/config"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New("status-sweeper", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	client := &http.Client{Timeout: 10 * time.Second}
	sweepURL := cfg.ArenaURL + "/sweep"

	c := cron.New()
	_, err = c.AddFunc(cfg.SweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sweepURL, nil)
		if err != nil {
			log.Error("build sweep request", zap.Error(err))
			return
		}
		res, err := client.Do(req)
		if err != nil {
			log.Error("sweep call", zap.Error(err))
			return
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		if res.StatusCode != http.StatusOK {
			log.Error("sweep failed", zap.Int("status", res.StatusCode), zap.ByteString("body", body))
			return
		}
		log.Info("sweep done", zap.ByteString("result", body))
	})
	if err != nil {
		log.Fatal("cron spec", zap.Error(err))
	}

	log.Info("sweeper started", zap.String("spec", cfg.SweepSpec), zap.String("target", sweepURL))
	c.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	<-c.Stop().Done()
	log.Info("sweeper stopped")
}
