package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
)

func TestViewServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := Config{
		ListenAddress:  lis.Addr().String(),
		MetricsAddress: "",
		FrameInterval:  20 * time.Millisecond,
		LogLevel:       "warn",
		LogFormat:      "text",
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	base := "http://" + cfg.ListenAddress
	resp, err := http.Get(base + "/v1/puzzles")
	if err != nil {
		t.Fatalf("GET /v1/puzzles: %v", err)
	}
	var puzzles struct {
		Puzzles []struct {
			Name string `json:"name"`
		} `json:"puzzles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&puzzles); err != nil {
		t.Fatalf("decode puzzles: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/puzzles status = %d", resp.StatusCode)
	}
	if len(puzzles.Puzzles) == 0 {
		t.Fatal("no puzzles registered")
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d", resp.StatusCode)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
