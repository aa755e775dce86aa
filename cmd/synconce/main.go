// Command synconce runs one sync pass from the command line and exits.
// Useful for cron-driven refreshes and for seeding a fresh database.
//
//	synconce -broker zerodha
//	synconce -broker all
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"symbolsyncv1/config"
	"symbolsyncv1/internal/archive"
	"symbolsyncv1/internal/logger"
	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/source"
	sqlitestore "symbolsyncv1/internal/store/sqlite"
	"symbolsyncv1/internal/syncer"
	smartconnect "symbolsyncv1/pkg/smartconnect"
)

func main() {
	broker := flag.String("broker", "all", "broker to sync (zerodha|upstox|angel|shoonya|all)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline for the run")
	flag.Parse()

	logger.Init("synconce", slog.LevelInfo)
	cfg := config.Load()

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("sqlite init failed: %v", err)
	}
	defer store.Close()

	archiver, err := archive.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("archive init failed: %v", err)
	}

	angel := source.NewAngel(nil)
	if cfg.HasAngelCredentials() {
		sc := smartconnect.New(smartconnect.Config{APIKey: cfg.AngelAPIKey})
		if sess, err := sc.GenerateSessionWithSecret(cfg.AngelClientCode, cfg.AngelPassword, cfg.AngelTOTPSecret); err != nil {
			log.Printf("angel login failed, using public endpoints: %v", err)
		} else {
			angel.APIKey = cfg.AngelAPIKey
			angel.AuthToken = sess.AccessToken
		}
	}

	adapters := []source.Adapter{
		source.NewZerodha(nil),
		source.NewUpstox(nil, cfg.UpstoxAccessToken),
		angel,
		source.NewShoonya(nil),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.InitStatuses(ctx, model.KnownBrokers()); err != nil {
		log.Fatalf("status init failed: %v", err)
	}

	orch := syncer.New(store, store, adapters).WithArchiver(archiver)

	if *broker != "all" {
		res, err := orch.SyncOne(ctx, *broker)
		if err != nil {
			log.Fatalf("sync %s failed: %v", *broker, err)
		}
		printResult(res)
		return
	}

	failed := 0
	for broker, res := range orch.SyncAll(ctx) {
		if res.Error != "" {
			fmt.Printf("%-10s FAILED: %s\n", broker, res.Error)
			failed++
			continue
		}
		printResult(res)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func printResult(res *syncer.Result) {
	line := fmt.Sprintf("%-10s %s: %d symbols (%d stored, %d updated, %d dropped) in %s",
		res.Broker, res.Status, res.TotalSymbols, res.Stored, res.Updated, res.Dropped, res.TookStr)
	if res.Degraded != "" {
		line += " [degraded: " + res.Degraded + "]"
	}
	if res.ArchiveError != "" {
		line += " [archive failed: " + res.ArchiveError + "]"
	}
	fmt.Println(line)
}
