package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xwordlive/xword/internal/api"
	"github.com/xwordlive/xword/internal/store"
	"github.com/xwordlive/xword/internal/ws"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func serve(ctx context.Context, cfg *Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer st.Close()

	if cfg.puzzleDir != "" {
		imported, err := st.ImportDir(cfg.puzzleDir)
		if err != nil {
			return fmt.Errorf("import puzzles: %w", err)
		}
		log.Printf("Imported %d puzzles from %s", imported, cfg.puzzleDir)
	}

	addr := net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port))

	publicURL := cfg.publicURL
	if publicURL == "" {
		publicURL = "http://" + addr
	}

	hub := ws.NewHub()
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.New(hub, st, publicURL).Router(),
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("xword server listening on %s", addr)
		if cfg.verbose {
			log.Printf("Database: %s", cfg.dbPath)
			log.Println("Endpoints:")
			log.Println("  - WebSocket: /ws")
			log.Println("  - Health:    GET /healthz")
			log.Println("  - Stats:     GET /api/stats")
			log.Println("  - Puzzles:   GET/POST /api/puzzles")
			log.Println("  - Puzzle:    GET/DELETE /api/puzzles/{id}")
			log.Println("  - Data:      GET /api/puzzles/{id}/data")
			log.Println("  - Rooms:     GET /api/rooms")
			log.Println("  - Room:      GET /api/rooms/{code}")
			log.Println("  - Join QR:   GET /api/rooms/{code}/qr")
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
