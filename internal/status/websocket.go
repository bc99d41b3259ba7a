package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"edgelink/internal/edge"
	"edgelink/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins, the server binds to loopback by default
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// hub fans out status messages to websocket clients.
type hub struct {
	server *Server

	clients    map[*client]bool
	broadcast  chan []byte
	direct     chan directMessage
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	closeOnce  sync.Once
}

type directMessage struct {
	to   *client
	data []byte
}

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
	ip   string
}

func newHub(s *Server) *hub {
	return &hub{
		server:     s,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		direct:     make(chan directMessage, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.server.log.Infof("Status client connected from %s, %d total", c.ip, len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.server.log.Infof("Status client %s disconnected, %d total", c.ip, len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}

		case m := <-h.direct:
			if h.clients[m.to] {
				select {
				case m.to.send <- m.data:
				default:
				}
			}

		case <-h.shutdown:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		}
	}
}

func (h *hub) close() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}

// publish queues msg for every client. It never blocks the caller.
func (h *hub) publish(msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.server.log.WithError(err).Warn("Failed to marshal status message")
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.shutdown:
	default:
		h.server.log.Debug("Status broadcast queue full, dropping message")
	}
}

func (h *hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.server.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		ip:   r.RemoteAddr,
	}

	// New clients start from a full snapshot.
	st := h.server.ctrl.Status()
	for _, msg := range []protocol.Message{modeMessage(st.Mode, st.TargetEdge), peerMessage(st.PeerConnected)} {
		if data, err := json.Marshal(msg); err == nil {
			c.send <- data
		}
	}

	select {
	case h.register <- c:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump pumps commands from the websocket connection to the controller.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.server.log.WithError(err).Debug("Read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type incoming struct {
	Type    protocol.MessageType `json:"type"`
	Payload json.RawMessage      `json:"payload"`
}

func (c *client) handleMessage(data []byte) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "invalid message"}})
		return
	}

	ctrl := c.hub.server.ctrl
	switch msg.Type {
	case protocol.TypeSetEdge:
		var p protocol.SetEdgePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "invalid set_edge payload"}})
			return
		}
		e, err := edge.Parse(p.Edge)
		if err != nil || e == edge.None {
			c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "unknown edge " + p.Edge}})
			return
		}
		c.hub.server.log.Infof("Target edge change to %s requested by %s", e, c.ip)
		ctrl.SetTargetEdge(e)
		st := ctrl.Status()
		c.hub.publish(modeMessage(st.Mode, st.TargetEdge))

	case protocol.TypeQuit:
		c.hub.server.log.Infof("Quit requested by %s", c.ip)
		ctrl.Quit()

	default:
		c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "unsupported message type " + string(msg.Type)}})
	}
}

// reply queues msg for this client only.
func (c *client) reply(msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMessage{to: c, data: data}:
	case <-c.hub.shutdown:
	}
}
