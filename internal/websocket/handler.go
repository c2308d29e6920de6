package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/kidquest/internal/auth"
)

// HandleWebSocket upgrades authenticated requests and streams the caller's
// family. originPatterns restricts cross-origin upgrades; empty allows any.
func HandleWebSocket(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		familyID := auth.FamilyID(r.Context())
		if familyID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns:     originPatterns,
			InsecureSkipVerify: len(originPatterns) == 0,
		})
		if err != nil {
			hub.logger.Warn("accept", "family_id", familyID, "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, familyID).Run(r.Context())
	}
}
