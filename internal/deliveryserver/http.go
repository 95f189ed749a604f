package deliveryserver

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/FHMS-ITS/mls-explained/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is expected to be enforced by a reverse proxy in front of
		// this service; the WebSocket payloads themselves are opaque
		// MLSCiphertext frames this process cannot read regardless.
		return true
	},
}

// ServeWs upgrades an HTTP request to a WebSocket connection, registers
// the resulting Client with hub, and joins groupID. The caller must
// present a token valid for userName, either as an "Authorization:
// Bearer" header or a "?token=" query parameter (browsers cannot set
// custom headers on a WebSocket handshake, so the query parameter is
// the form most clients will actually use).
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userName, groupID string) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if err := hub.Authenticate(userName, token); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[delivery] upgrade failed: %v", err)
		return
	}

	client := &Client{UserName: userName, Conn: conn, Send: make(chan []byte, 256), hub: hub}
	hub.register <- client

	if err := hub.JoinGroup(r.Context(), client, groupID); err != nil {
		log.Printf("[delivery] join group %s for %s failed: %v", groupID, userName, err)
	}

	go client.WritePump()
	go client.ReadPump()
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("delivery service is healthy"))
}

// Router builds the HTTP mux a delivery-server process listens on: a
// WebSocket endpoint per (user, group) pair and a health check.
func Router(hub *Hub) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws/{groupID}/{userName}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		ServeWs(hub, w, r, vars["userName"], vars["groupID"])
	})

	r.HandleFunc("/health", HealthCheck).Methods("GET")

	return r
}
