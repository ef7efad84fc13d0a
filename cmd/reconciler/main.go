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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ariefcatur/renu-clearing/internal/app"
	"github.com/ariefcatur/renu-clearing/internal/config"
	kafkax "github.com/ariefcatur/renu-clearing/internal/kafka"
	"github.com/ariefcatur/renu-clearing/internal/metrics"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/reconciler"
	"github.com/ariefcatur/renu-clearing/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-reconciler"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	svc := &reconciler.Service{
		Lifecycle:   a.Lifecycle,
		Dedup:       &redisx.Dedup{RDB: a.Redis},
		Events:      a.Events,
		ServiceName: cfg.ServiceName,
		Delay:       cfg.ReconcilerDelay,
		Timeout:     30 * time.Second,
		MaxPolls:    cfg.ReconcilerMaxPolls,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicOrderState, cfg.ReconcilerWorkers)
	consDone := make(chan struct{})
	go func() {
		defer close(consDone)
		log.Printf("reconciler started: group=%s topic=%s workers=%d", cfg.ReconcilerGroup, orders.TopicOrderState, cfg.ReconcilerWorkers)
		if err := cons.Start(ctx, svc.HandleStateChanged); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	msrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down reconciler...")
	cancel()
	// workers may still publish poll events; close the producers after them
	select {
	case <-consDone:
	case <-time.After(10 * time.Second):
		log.Println("consumer did not stop in time")
	}
	_ = msrv.Close()
	a.Close()
}
