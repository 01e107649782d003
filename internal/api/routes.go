package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes mounts the farm API. metricsHandler may be nil.
func (h *Handler) Routes(m *Middleware, auth *Authenticator, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(h.config.Security.CORSAllowedOrigins))
	r.Use(m.RateLimit(h.config.Security.RateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// Live updates hijack or stream the connection, so they stay outside
		// the timeout and compression wrappers.
		r.Get("/stream", h.HandleSSE)
		r.Get("/ws", h.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(m.Compress)
			r.Use(m.Timeout(15 * time.Second))

			// JSON-RPC endpoint; write methods need a token
			r.With(auth.OptionalMiddleware).Post("/jsonrpc", h.HandleJSONRPC)

			// Public reads
			r.Get("/state", h.GetState)
			r.Get("/tiers", h.GetLockTiers)
			r.Get("/pools", h.ListPools)
			r.Get("/pools/stats", h.ListPoolStats)
			r.Get("/pools/{id}", h.GetPool)
			r.Get("/pools/{id}/stats", h.GetPoolStats)
			r.Get("/pools/{id}/positions/{wallet}", h.GetPosition)
			r.Get("/wallets/{wallet}/positions", h.GetWalletPositions)
			r.Get("/wallets/{wallet}/balances/{asset}", h.GetWalletBalance)
			r.Get("/wallets/{wallet}/metadata", h.GetMetadata)
			r.Get("/wallets/{wallet}/events", h.GetWalletEvents)

			// Authenticated operations. Admin operations are checked against
			// the farm authority by the engine.
			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware)

				r.Post("/state", h.InitializeFarm)
				r.Post("/emission", h.ChangeEmissionRate)
				r.Post("/rewards/fund", h.FundRewards)
				r.Post("/tiers", h.CreateLockTiers)
				r.Put("/tiers", h.SetLockTiers)

				r.Post("/pools", h.CreatePool)
				r.Post("/pools/{id}/close", h.ClosePool)
				r.Post("/pools/{id}/weight", h.ChangePoolWeight)
				r.Post("/pools/{id}/multiplier", h.ChangePoolAmountMultiplier)

				r.Post("/pools/{id}/positions", h.CreatePosition)
				r.Post("/pools/{id}/stake", h.Stake)
				r.Post("/pools/{id}/unstake", h.Unstake)
				r.Post("/pools/{id}/harvest", h.Harvest)

				r.Put("/wallets/{wallet}/metadata", h.SetMetadata)
				r.Post("/faucet", h.Faucet)
			})
		})
	})

	return r
}
