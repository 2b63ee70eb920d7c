// Standalone mock Devsly API for trying the CLI without an account.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	export DEVSLY_API_KEY=demo-key
//	go run ./cmd/devsly run -c example/suite.yaml --listen :8080
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/devsly/devsly-go/internal/mockapi"
)

func main() {
	fmt.Println("Mock Devsly API starting on :8089")
	fmt.Println("API key: demo-key, base URL: http://localhost:8089" + mockapi.APIPrefix)
	fmt.Println("Tests run for five status checks, then complete")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	api := mockapi.New("demo-key", mockapi.WithSteps(5))

	if err := http.ListenAndServe(":8089", api); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
