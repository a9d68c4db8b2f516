package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboard is a local tool, any origin may connect.
		return true
	},
}

// frame is the wire envelope for every dashboard message.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Activity is one event line for the dashboard feed.
type Activity struct {
	Msg  string `json:"msg"`
	Type string `json:"type"` // trade, info, error
}

// Hub fans dashboard frames out to every connected WebSocket client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates the hub; call Run in a goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run owns the client set until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client, drop it.
					go func(c *client) { h.unregister <- c }(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastState pushes a {type:"state"} frame to all clients.
func (h *Hub) BroadcastState(payload *StatePayload) {
	h.send(frame{Type: "state", Payload: payload})
}

// BroadcastActivity pushes a {type:"activity"} frame to all clients.
func (h *Hub) BroadcastActivity(msg, kind string) {
	h.send(frame{Type: "activity", Payload: Activity{Msg: msg, Type: kind}})
}

func (h *Hub) send(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Warn().Err(err).Msg("dashboard frame marshal failed")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Debug().Msg("dashboard broadcast channel full, frame dropped")
	}
}

// serve upgrades one HTTP request into a hub client.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256), hub: h}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Clients never send anything meaningful, drain until close.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
