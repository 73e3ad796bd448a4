package main

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/transport-university/chatbot/backend/internal/config"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	mem, err := openStore(ctx, config.StoreConfig{Driver: config.StoreMemory})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	mem.Close()

	path := filepath.Join(t.TempDir(), "data", "chat.db")
	lite, err := openStore(ctx, config.StoreConfig{Driver: config.StoreSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	if err := lite.Ping(ctx); err != nil {
		t.Fatalf("sqlite ping: %v", err)
	}
	lite.Close()

	if _, err := openStore(ctx, config.StoreConfig{Driver: "mongo"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not stop")
	}
}
