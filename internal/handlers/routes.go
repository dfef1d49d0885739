package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/jjenkins/billtracker/internal/auth"
	"github.com/jjenkins/billtracker/internal/service"
	"github.com/jjenkins/billtracker/internal/store"
)

// Deps are the services the HTTP API is built on
type Deps struct {
	DB        *sql.DB
	Bills     *store.BillStore
	Refresher *service.Refresher
	Tracker   *service.Tracker
	Metrics   *service.MetricsService
	Issuer    *auth.Issuer
	APIKey    string
}

// NewApp builds the fiber app with every route registered
func NewApp(deps Deps, withLogger bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "billtracker",
	})

	if withLogger {
		app.Use(logger.New())
	}

	app.Get("/healthz", adaptor.HTTPHandlerFunc(HealthHandler(deps.DB)))

	api := app.Group("/api")

	// Trigger routes, authorized by the shared key
	api.Post("/refresh_one_bill", RefreshOneBillHandler(deps.Refresher, deps.APIKey))
	api.Post("/refresh_listing", RefreshListingHandler(deps.Refresher, deps.APIKey))

	// Query routes
	api.Get("/bills_by_update_date", BillsByUpdateDateHandler(deps.Bills))
	api.Get("/bills/:yearcode/:billno", BillHandler(deps.Bills))
	api.Get("/stats", StatsHandler(deps.Metrics))

	// Account routes
	api.Post("/register", RegisterHandler(deps.Tracker))
	api.Post("/login", LoginHandler(deps.Tracker, deps.Issuer))

	// Tracking routes
	requireUser := RequireUser(deps.Issuer)
	api.Post("/track", requireUser, TrackHandler(deps.Tracker))
	api.Delete("/track/:yearcode/:billno", requireUser, UntrackHandler(deps.Tracker))
	api.Get("/dashboard", requireUser, DashboardHandler(deps.Tracker))

	return app
}

// HealthHandler reports whether the database answers
func HealthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable\n"))
			return
		}
		w.Write([]byte("ok\n"))
	}
}
