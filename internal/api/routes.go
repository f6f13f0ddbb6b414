package api

import "github.com/go-chi/chi/v5"

// Routes builds the full HTTP surface. Shared by the server binary and
// the handler tests.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/stocks", h.GetStocks)
	r.Get("/stocks/{id}", h.GetStock)
	r.Get("/stocks/{id}/history", h.GetPriceHistory)
	r.Get("/market/status", h.GetMarketStatus)
	r.Get("/developments", h.GetDevelopments)
	r.Get("/developments/{id}", h.GetDevelopment)
	r.Get("/ws", h.ServeWS)

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/trades", h.PlaceTrade)
		r.Get("/trades", h.GetUserTrades)
		r.Get("/balance", h.GetBalance)
		r.Get("/portfolio", h.GetPortfolio)

		// Admin-only endpoints
		r.Group(func(r chi.Router) {
			r.Use(h.AdminOnly)
			r.Post("/stocks", h.CreateStock)
			r.Put("/stocks/{id}/price", h.SetStockPrice)
			r.Delete("/stocks/{id}", h.DeleteStock)
			r.Put("/market/status", h.SetMarketStatus)
			r.Post("/developments", h.CreateDevelopment)
			r.Put("/developments/{id}", h.UpdateDevelopment)
			r.Put("/developments/{id}/posted", h.PostDevelopment)
		})
	})

	return r
}
