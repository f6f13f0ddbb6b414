package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/simstreet/simstreet/internal/auth"
	"github.com/simstreet/simstreet/internal/db"
	"github.com/simstreet/simstreet/internal/market"
	"github.com/simstreet/simstreet/internal/models"
	"github.com/simstreet/simstreet/internal/trading"
	"github.com/simstreet/simstreet/internal/ws"
)

type ctxKey int

const principalKey ctxKey = 0

// Handler contains dependencies for HTTP handlers
type Handler struct {
	AuthService  *auth.AuthService
	Engine       *trading.Engine
	Registry     *market.Registry
	Developments *market.Developments
	Hub          *ws.Hub
	Logger       *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(authService *auth.AuthService, engine *trading.Engine, registry *market.Registry, developments *market.Developments, hub *ws.Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		AuthService:  authService,
		Engine:       engine,
		Registry:     registry,
		Developments: developments,
		Hub:          hub,
		Logger:       logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain failures to status codes with an actionable
// message. Anything unrecognized is a generic server error.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trading.ErrInvalidAmount),
		errors.Is(err, trading.ErrInvalidSide),
		errors.Is(err, market.ErrMissingField),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidPriceChange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrStockNotFound),
		errors.Is(err, db.ErrUserNotFound),
		errors.Is(err, db.ErrDevelopmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrDuplicateTicker),
		errors.Is(err, db.ErrDuplicateTitle):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrInsufficientBalance),
		errors.Is(err, db.ErrInsufficientHoldings),
		errors.Is(err, trading.ErrMarketClosed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.Logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// principal extracts the authenticated identity set by the middleware.
func principal(r *http.Request) (auth.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(auth.Principal)
	return p, ok
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"balance":  user.Balance,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// bearerToken pulls the token out of the Authorization header, with or
// without the "Bearer " prefix.
func bearerToken(r *http.Request) string {
	tokenString := r.Header.Get("Authorization")
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		return tokenString[7:]
	}
	return tokenString
}

// JWTAuthMiddleware verifies JWT tokens and attaches the principal.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		p, err := h.AuthService.PrincipalFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly gates admin operations on the principal's role claim.
func (h *Handler) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(r)
		if !ok || !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PlaceTrade executes a buy or sell for the authenticated trader.
func (h *Handler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Ticker string  `json:"ticker"`
		Amount float64 `json:"amount"`
		Side   string  `json:"side"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	trade, err := h.Engine.Execute(r.Context(), p.UserID, req.Ticker, req.Amount, req.Side)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, trade)
}

// GetBalance returns the authenticated trader's cash balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	balance, err := h.Engine.Balance(r.Context(), p.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

// GetPortfolio returns the trader's positions valued at current prices.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	portfolio, err := h.Engine.Portfolio(r.Context(), p.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// GetUserTrades retrieves the trader's trade history.
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	trades, err := h.Engine.Trades(r.Context(), p.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if trades == nil {
		trades = []models.TradeRecord{}
	}

	writeJSON(w, http.StatusOK, trades)
}
