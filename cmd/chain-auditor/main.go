// chain-auditor reexecuta a corrente inteira e sai com código 1 no primeiro
// hash divergente. Pensado para rodar em cron ou manualmente antes de uma
// remediação.
package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/config"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/db"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/logger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New("chain-auditor", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	lg := ledger.NewService(storage.NewPostgres(pg), time.Now)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rep, err := lg.VerifyIntegrity(ctx)
	if err != nil {
		log.Fatal("verify", zap.Error(err))
	}
	if !rep.Valid {
		log.Error("chain corrupted",
			zap.Int("length", rep.Length),
			zap.Int("first_bad_index", rep.FirstBadIndex))
		os.Exit(1)
	}

	cons, err := lg.Conservation(ctx)
	if err != nil {
		log.Fatal("conservation", zap.Error(err))
	}
	if !cons.Consistent {
		log.Error("balances diverge from chain replay",
			zap.Int64("sum_balances", cons.SumBalances),
			zap.Int64("minted", cons.Minted),
			zap.Int64("burned", cons.Burned))
		os.Exit(1)
	}

	log.Info("chain ok",
		zap.Int("length", rep.Length),
		zap.Int64("sum_balances", cons.SumBalances))
}
