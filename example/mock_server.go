package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/devsly/devsly-go/internal/mockapi"
)

// StartMockAPI serves a fake Devsly API on addr. Every request is delayed by
// 20-100ms so progress output looks like a real network round trip.
// Tests report "running" for three status checks, then complete.
// Call this in a goroutine before creating the client.
func StartMockAPI(addr, apiKey string) {
	api := mockapi.New(apiKey, mockapi.WithSteps(3))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)
		api.ServeHTTP(w, r)
	})

	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
