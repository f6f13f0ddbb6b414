package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/simstreet/simstreet/internal/models"
)

func urlParamInt(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	return v, err == nil
}

// GetStocks lists all stocks.
func (h *Handler) GetStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.Registry.Stocks(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if stocks == nil {
		stocks = []models.Stock{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

// GetStock returns one stock by id.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}

	stock, err := h.Registry.Stock(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

// GetPriceHistory returns a stock's price ledger, oldest first.
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}

	history, err := h.Registry.History(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if history == nil {
		history = []models.PriceHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

// CreateStock registers a new stock (admin only).
func (h *Handler) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker string  `json:"ticker"`
		Name   string  `json:"name"`
		Price  float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stock, err := h.Registry.CreateStock(r.Context(), req.Ticker, req.Name, req.Price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stock)
}

// SetStockPrice overwrites a stock's price (admin only).
func (h *Handler) SetStockPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}

	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stock, err := h.Registry.SetPrice(r.Context(), id, req.Price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

// DeleteStock removes a stock (admin only).
func (h *Handler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}

	if err := h.Registry.DeleteStock(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "stock deleted"})
}

// GetMarketStatus returns the open/closed flag.
func (h *Handler) GetMarketStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Registry.Status(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SetMarketStatus opens or closes the market (admin only).
func (h *Handler) SetMarketStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsOpen bool `json:"is_open"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := h.Registry.SetStatus(r.Context(), req.IsOpen)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetDevelopments lists developments. The route is public; drafts are
// included only when the optional bearer token carries the admin role.
func (h *Handler) GetDevelopments(w http.ResponseWriter, r *http.Request) {
	isAdmin := false
	if token := bearerToken(r); token != "" {
		if p, err := h.AuthService.PrincipalFromToken(token); err == nil {
			isAdmin = p.IsAdmin()
		}
	}
	devs, err := h.Developments.List(r.Context(), !isAdmin)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if devs == nil {
		devs = []models.Development{}
	}
	writeJSON(w, http.StatusOK, devs)
}

// GetDevelopment returns one development.
func (h *Handler) GetDevelopment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid development id")
		return
	}

	dev, err := h.Developments.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	// Drafts stay invisible to everyone but admins.
	if !dev.Posted {
		isAdmin := false
		if token := bearerToken(r); token != "" {
			if p, err := h.AuthService.PrincipalFromToken(token); err == nil {
				isAdmin = p.IsAdmin()
			}
		}
		if !isAdmin {
			writeError(w, http.StatusNotFound, "development not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, dev)
}

// CreateDevelopment adds a draft development (admin only).
func (h *Handler) CreateDevelopment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string                    `json:"title"`
		Content      string                    `json:"content"`
		PriceChanges []models.StockPriceChange `json:"price_changes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dev, err := h.Developments.Create(r.Context(), req.Title, req.Content, req.PriceChanges)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// UpdateDevelopment edits a development (admin only).
func (h *Handler) UpdateDevelopment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid development id")
		return
	}

	var req struct {
		Title        string                    `json:"title"`
		Content      string                    `json:"content"`
		PriceChanges []models.StockPriceChange `json:"price_changes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dev, err := h.Developments.Update(r.Context(), id, req.Title, req.Content, req.PriceChanges)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// PostDevelopment flips the posted flag (admin only); posting applies the
// development's price changes.
func (h *Handler) PostDevelopment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid development id")
		return
	}

	var req struct {
		Posted bool `json:"posted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dev, err := h.Developments.SetPosted(r.Context(), id, req.Posted)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}
