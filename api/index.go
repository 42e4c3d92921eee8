// Package handler is the serverless entrypoint. Each cold start builds the
// Fiber app once and reuses it for later invocations.
package handler

import (
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"ogimage/internal/app"
	u "ogimage/internal/utils"
)

var (
	once    sync.Once
	handler http.HandlerFunc
)

func setup() {
	cfg := u.LoadConfig()
	cfg.ApplyEnv()
	u.InitLogger("", 0, 0, 0, false, cfg.Logger.Level)

	fiberApp, err := app.SetupApp(app.Deps{Config: cfg})
	if err != nil {
		u.Error("Failed to set up app", "error", err)
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Internal Server Error"}`))
		}
		return
	}
	handler = adaptor.FiberApp(fiberApp)
}

// Handler serves every request routed to the function.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	handler(w, r)
}
