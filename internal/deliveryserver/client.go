package deliveryserver

import (
	"log"

	"github.com/gorilla/websocket"
)

// Client is one member's live WebSocket connection, grounded on the
// teacher's messaging-service Client (cmd/messaging-service/internal/models/client.go):
// a buffered Send channel drained by WritePump, and a ReadPump that just
// forwards whatever bytes arrive to the hub — a delivery server's
// clients only ever send already-framed MLSCiphertext bytes, there is
// no JSON envelope to unwrap on this side.
type Client struct {
	UserName string
	Conn     *websocket.Conn
	Send     chan []byte
	hub      *Hub
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[delivery] websocket error for %s: %v", c.UserName, err)
			}
			break
		}
		c.hub.incoming <- incomingFrame{from: c, payload: message}
	}
}

func (c *Client) WritePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
