package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kurniawanc/pos-ledger/internal/config"
	"github.com/kurniawanc/pos-ledger/internal/events"
	kafkax "github.com/kurniawanc/pos-ledger/internal/kafka"
	"github.com/kurniawanc/pos-ledger/internal/ledger"
	"github.com/kurniawanc/pos-ledger/internal/postgres"
	"github.com/kurniawanc/pos-ledger/internal/redisx"
	"github.com/kurniawanc/pos-ledger/internal/stockwatch"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	alerts := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockLow, 1024)
	alerts.Start(ctx)

	svc := &stockwatch.Service{
		// the watcher only reads and bumps counters; it publishes no unit
		// status changes of its own
		Ledger:      &ledger.PGStore{DB: db},
		Redis:       rdb,
		Alerts:      alerts,
		ServiceName: cfg.ServiceName + "-stockwatch",
	}

	group := getenv("STOCKWATCH_GROUP", "stockwatch-svc")
	workers := mustAtoi(os.Getenv("STOCKWATCH_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicUnitStatus, workers)

	go func() {
		log.Printf("stockwatch consumer started: group=%s topic=%s workers=%d",
			group, events.TopicUnitStatus, workers)
		if err := cons.Start(ctx, svc.HandleUnitStatus); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	alerts.Close()
	alerts.WaitClosed()
}
