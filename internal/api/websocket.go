package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/simstreet/simstreet/internal/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// ServeWS upgrades the connection and hands it to the hub. A token may be
// passed as ?token= so the connection registry can key it by user;
// anonymous observers are accepted. The initial snapshot lets a client
// render without an immediate re-pull; afterwards the channel carries
// notifications only.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := 0
	if token := r.URL.Query().Get("token"); token != "" {
		if p, err := h.AuthService.PrincipalFromToken(token); err == nil {
			userID = p.UserID
		}
	}

	stocks, err := h.Registry.Stocks(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status, err := h.Registry.Status(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("failed to upgrade connection", "error", err)
		return
	}

	h.Hub.Serve(conn, userID, ws.Event{
		Type: ws.EventSnapshot,
		Data: ws.Snapshot{Stocks: stocks, MarketIsOpen: status.IsOpen},
	})
}
