package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	solana "github.com/gagliardetto/solana-go"

	"SolPayGate/internal/chain"
	"SolPayGate/internal/config"
	"SolPayGate/internal/db"
	internalhttp "SolPayGate/internal/http"
	"SolPayGate/internal/payments"
	"SolPayGate/internal/services"
	"SolPayGate/internal/store"
	"SolPayGate/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var nonceStore store.NonceStore
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()
		nonceStore = store.New(pool)
	case "memory":
		nonceStore = store.NewMemory()
	}

	var ledger chain.Ledger
	var feePayer solana.PrivateKey
	if cfg.Solana.Simulate {
		ledger = chain.NewSimulatedLedger()
		log.Printf("settlement running in simulation mode")
	} else {
		feePayer, err = solana.PrivateKeyFromBase58(cfg.Solana.FeePayerKey)
		if err != nil {
			log.Fatalf("invalid fee payer key: %v", err)
		}
		ledger = chain.NewSolanaLedger(cfg.Solana.RPCEndpoint, cfg.Solana.Commitment)
		log.Printf("fee payer %s via %s", feePayer.PublicKey(), cfg.Solana.RPCEndpoint)
	}

	executor := &services.SettlementExecutor{
		Ledger:         ledger,
		FeePayer:       feePayer,
		Simulate:       cfg.Solana.Simulate,
		ConfirmTimeout: time.Duration(cfg.Nonces.ConfirmTimeoutSeconds) * time.Second,
	}
	paymentSvc := &services.PaymentService{
		Store:    nonceStore,
		Executor: executor,
		Fees: payments.FeePolicy{
			Mode:                payments.FeeMode(cfg.Fees.Mode),
			Percentage:          cfg.Fees.Percentage,
			FixedAmount:         cfg.Fees.FixedAmount,
			PlatformAddress:     cfg.Fees.PlatformAddress,
			PlatformDescription: cfg.Fees.PlatformDescription,
			PrimaryDescription:  cfg.Fees.PrimaryDescription,
		},
		DefaultTTL: time.Duration(cfg.Nonces.TTLSeconds) * time.Second,
	}

	sweeper := &worker.Sweeper{
		Store:    nonceStore,
		Interval: time.Duration(cfg.Nonces.SweepIntervalSeconds) * time.Second,
	}
	go sweeper.Run(ctx)

	h := internalhttp.NewHandler(paymentSvc)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("facilitator listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}
