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
	"github.com/ariefcatur/renu-clearing/internal/httpx"
	"github.com/ariefcatur/renu-clearing/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	router := httpx.NewRouter(metrics.NewServerMetrics(prometheus.DefaultRegisterer, "api"), metrics.Handler())
	(&httpx.PaymentsHandler{Lifecycle: a.Lifecycle, Service: cfg.ServiceName}).Register(router)
	(&httpx.OrdersHandler{
		Lifecycle: a.Lifecycle,
		Repo:      a.Repo,
		Cache:     a.Cache,
		Service:   cfg.ServiceName,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
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
	a.Close() // flush producers, close redis + db
	cancel()
}
