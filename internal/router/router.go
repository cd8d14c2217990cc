package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/engine/internal/config"
	"github.com/kiwari-pos/engine/internal/enum"
	"github.com/kiwari-pos/engine/internal/handler"
	mw "github.com/kiwari-pos/engine/internal/middleware"
	"github.com/kiwari-pos/engine/internal/ws"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Orders    handler.OrderServicer
	Addons    handler.AddonServicer
	Inventory handler.AvailabilityChecker
	Audit     handler.AuditStore
	Staff     handler.AuthStore
	Hub       *ws.Hub
	Logger    *zap.Logger
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	handler.NewAuthHandler(d.Staff, cfg.JWTSecret, d.Logger).RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/{room}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(d.Hub, cfg.JWTSecret, d.Logger, w, r)
	})

	orders := handler.NewOrderHandler(d.Orders, d.Audit, d.Logger)
	addons := handler.NewAddonHandler(d.Addons, d.Logger)
	stock := handler.NewInventoryHandler(d.Inventory, d.Logger)

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/orders", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.StaffRoleOwner, enum.StaffRoleManager, enum.StaffRoleCashier, enum.StaffRoleKitchen))
			orders.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.StaffRoleOwner, enum.StaffRoleManager, enum.StaffRoleCashier))
				orders.RegisterEntryRoutes(r)
				addons.RegisterRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.StaffRoleOwner, enum.StaffRoleManager))
				orders.RegisterAuditRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.StaffRoleOwner, enum.StaffRoleManager, enum.StaffRoleCashier))
			stock.RegisterRoutes(r)
		})
	})

	d.Logger.Info("router initialized")
	return r
}
