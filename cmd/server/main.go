// Package main is the proxy's entry point: a single binary with no
// required positional arguments, configured entirely from the
// environment, per spec.md §6.
//
// Grounded on the teacher's cmd/server/main.go for the overall
// init-logging / load-config / build-router / listen shape, and on
// other_examples/m2self-claude-proxy's main.go for the specific
// http.Server field values a streaming proxy needs (WriteTimeout: 0 so a
// long-lived SSE response is never cut off, ReadHeaderTimeout set so a
// slow client can't hold a connection open indefinitely).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tyrchen/claude-code-proxy/internal/config"
	"github.com/tyrchen/claude-code-proxy/internal/httpapi"
	"github.com/tyrchen/claude-code-proxy/internal/logging"
	"github.com/tyrchen/claude-code-proxy/internal/schema"
	"github.com/tyrchen/claude-code-proxy/internal/state"
	"github.com/tyrchen/claude-code-proxy/internal/translate"
	"github.com/tyrchen/claude-code-proxy/internal/upstream"
)

const schemaCacheSize = 256

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("claude-code-proxy (dev)")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "claude-code-proxy: configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.UpstreamHost == "" {
		fmt.Fprintln(os.Stderr, "claude-code-proxy: PROXY_UPSTREAM_HOST must not be empty")
		os.Exit(1)
	}

	logging.Setup(cfg)

	store := state.New(cfg.ToolCallTTL)
	tr := translate.New(cfg, store, schema.NewCache(schemaCacheSize))
	client := upstream.New(cfg)
	handler := httpapi.New(cfg, tr, client, store)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.Recovery(), logging.RequestLogger())
	handler.Register(engine)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // streaming responses can outlive any fixed deadline
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", cfg.ListenAddr).Info("claude-code-proxy: listening")

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("claude-code-proxy: server exited")
		}
	case <-stop:
		log.Info("claude-code-proxy: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("claude-code-proxy: graceful shutdown failed")
		}
	}
}
