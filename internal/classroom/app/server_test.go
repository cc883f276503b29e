package server

import (
	"context"
	"testing"
	"time"
)

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error for missing http address")
	}
}

func TestNewServerDefaultsArchiveToMemory(t *testing.T) {
	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Close()
	if server.store == nil {
		t.Fatal("expected an archive store")
	}
}

func TestListenAndServeStopsOnContextCancel(t *testing.T) {
	server, err := NewServer(Config{
		HTTPAddr:        "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ListenAndServe(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestListenAndServeRequiresContext(t *testing.T) {
	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(nil); err == nil {
		t.Fatal("expected error for nil context")
	}
}

func TestNilServerIsSafe(t *testing.T) {
	var server *Server
	server.Close()
	if err := server.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error from nil server")
	}
}
