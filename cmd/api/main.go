package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kurniawanc/pos-ledger/internal/config"
	"github.com/kurniawanc/pos-ledger/internal/events"
	"github.com/kurniawanc/pos-ledger/internal/httpx"
	kafkax "github.com/kurniawanc/pos-ledger/internal/kafka"
	"github.com/kurniawanc/pos-ledger/internal/ledger"
	"github.com/kurniawanc/pos-ledger/internal/postgres"
	"github.com/kurniawanc/pos-ledger/internal/redisx"
	"github.com/kurniawanc/pos-ledger/internal/reservation"
	"github.com/kurniawanc/pos-ledger/internal/rma"
	"github.com/kurniawanc/pos-ledger/internal/transaction"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	unitProd := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicUnitStatus, 1024)
	unitProd.Start(ctx)
	txnProd := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicTransactionCommitted, 1024)
	txnProd.Start(ctx)
	rmaProd := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicRMAResolved, 1024)
	rmaProd.Start(ctx)

	unitEvents := &events.UnitStatusPublisher{Sink: unitProd, Service: cfg.ServiceName}

	// Stores
	var (
		ledgerStore ledger.Store
		txnStore    transaction.Store
		rmaStore    rma.Store
	)
	switch cfg.Store {
	case "memory":
		ledgerStore = ledger.NewMemoryStore(unitEvents)
		txnStore = transaction.NewMemoryStore()
		rmaStore = rma.NewMemoryStore()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		ledgerStore = &ledger.PGStore{DB: db, Events: unitEvents}
		txnStore = &transaction.PGStore{DB: db}
		rmaStore = &rma.PGStore{DB: db}
	}

	// Domain services
	cart := &reservation.Manager{Ledger: ledgerStore, TTL: cfg.ReservationTTL}
	sweeper := &reservation.Sweeper{Ledger: ledgerStore, Interval: cfg.SweepInterval}
	sweeper.Start(ctx)
	txnSvc := transaction.NewService(ledgerStore, txnStore)
	rmaSvc := rma.NewService(ledgerStore, rmaStore, txnSvc)

	// HTTP
	router := httpx.NewRouter()
	(&httpx.ProductsHandler{Ledger: ledgerStore, Cart: cart}).Register(router)
	(&httpx.TransactionsHandler{Svc: txnSvc, Redis: rdb, Producer: txnProd, Service: cfg.ServiceName}).Register(router)
	(&httpx.RMAHandler{Svc: rmaSvc, Producer: rmaProd, Service: cfg.ServiceName}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s (store=%s)", cfg.HTTPAddr, cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	unitProd.Close()
	txnProd.Close()
	rmaProd.Close()
	cancel()
	unitProd.WaitClosed()
	txnProd.WaitClosed()
	rmaProd.WaitClosed()
}
