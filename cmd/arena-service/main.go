package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	scache "github.com/W3nkt/Nyuj-PVP-sub001/internal/arena-service/cache"
	ahttp "github.com/W3nkt/Nyuj-PVP-sub001/internal/arena-service/http"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/arena-service/producer"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/betting"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/event"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/cache"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/config"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/db"
	skafka "github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/kafka"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/logger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/metrics"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/voting"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/wallet"
	"github.com/W3nkt/Nyuj-PVP-sub001/pkg/contracts/topics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("env", cfg.Env))

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}

	// Kafka writers, um por tópico
	publ := &producer.KafkaPublisher{
		BetPlacedW:     skafka.NewWriter(cfg.KafkaBrokers, topics.BetPlaced),
		BetMatchedW:    skafka.NewWriter(cfg.KafkaBrokers, topics.BetMatched),
		VoteSubmittedW: skafka.NewWriter(cfg.KafkaBrokers, topics.VoteSubmitted),
		EventSettledW:  skafka.NewWriter(cfg.KafkaBrokers, topics.EventSettled),
	}
	defer skafka.CloseAll(publ.BetPlacedW, publ.BetMatchedW, publ.VoteSubmittedW, publ.EventSettledW)

	// serviços
	store := storage.NewPostgres(pg)
	lg := ledger.NewService(store, time.Now)
	walletSvc := wallet.NewService(store, lg, wallet.Limits{
		DepositMin:  cfg.DepositMinCents,
		DepositMax:  cfg.DepositMaxCents,
		WithdrawMin: cfg.WithdrawMinCents,
	})
	bettingSvc := betting.NewService(store, lg, betting.Limits{
		BetMin: cfg.BetMinCents,
		BetMax: cfg.BetMaxCents,
		Cutoff: cfg.BettingCutoff,
	}, time.Now)
	eventSvc := event.NewService(store, lg, cfg.BettingCutoff, time.Now)
	votingSvc := voting.NewService(store, lg, cfg.StreamerIncentiveCents, time.Now)
	statusCache := scache.New(rdb, cfg.StatusCacheTTL)

	// Corrente íntegra antes de aceitar escrita: se o replay acusa hash
	// divergente, o serviço sobe travado e só responde leitura.
	if rep, err := lg.VerifyIntegrity(context.Background()); err != nil {
		log.Fatal("integrity check", zap.Error(err))
	} else if !rep.Valid {
		log.Error("ledger chain corrupted; appends halted",
			zap.Int("first_bad_index", rep.FirstBadIndex))
	}

	api := ahttp.NewServer(log, walletSvc, bettingSvc, eventSvc, votingSvc, lg, publ, statusCache)
	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	metrics.StartMetricsServer(cfg.MetricsPort, map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api srv", zap.Error(err))
	}
}
