package handlers

import (
	"encoding/json"
	"net/http"

	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
)

// NewEventsRouter serves the remote listener endpoint /events/{area} and a
// health probe reporting open sockets.
func NewEventsRouter(wsHandler *websocket.Handler, connManager *websocket.ConnectionManager, log logger.Logger) *mux.Router {
	router := mux.NewRouter()
	wsHandler.Routes(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"connections": connManager.Count(),
		})
		if err != nil {
			log.Warn("Failed to write health response", "error", err)
		}
	}).Methods(http.MethodGet)

	return router
}
