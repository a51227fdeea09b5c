package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/coordinator/internal/router"
	"github.com/dyluth/coordinator/pkg/protocol"
	"github.com/gorilla/websocket"
)

// conn is one WebSocket client.
type conn struct {
	server *Server
	ws     *websocket.Conn
	rc     *router.Conn
	send   chan protocol.Message

	once       sync.Once
	done       chan struct{}
	closeCode  int
	closeText  string
	remoteAddr string
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Printf("[Coordinator] WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	c := &conn{
		server:     s,
		ws:         ws,
		send:       make(chan protocol.Message, s.sendBuffer),
		done:       make(chan struct{}),
		closeCode:  websocket.CloseNormalClosure,
		remoteAddr: r.RemoteAddr,
	}

	if !s.track(c) {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	c.rc = s.router.Connect(c.enqueue)

	s.logEvent("client_connected", map[string]interface{}{
		"remote_addr": c.remoteAddr,
	})

	go c.writeLoop()
	c.readLoop()
}

// enqueue hands a message to the writer without blocking. A client whose
// queue is full is disconnected.
func (c *conn) enqueue(msg protocol.Message) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		log.Printf("[Coordinator] Send queue full for %s, disconnecting", c.remoteAddr)
		c.shutdown(websocket.ClosePolicyViolation, "send queue full")
	}
}

// shutdown asks the writer to send a close frame and stop. The first call wins.
func (c *conn) shutdown(code int, text string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

func (c *conn) readLoop() {
	defer func() {
		c.shutdown(websocket.CloseNormalClosure, "")
		agentID := c.rc.AgentID()
		c.rc.Close()
		c.ws.Close()

		c.server.logEvent("client_disconnected", map[string]interface{}{
			"remote_addr": c.remoteAddr,
			"agent_id":    agentID,
		})
		c.server.untrack(c)
	}()

	deadline := c.server.pingInterval + c.server.pongWait
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Coordinator] Connection from %s lost: %v", c.remoteAddr, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(deadline))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(protocol.NewError(0, protocol.Errorf(protocol.CodeInvalidInput, "malformed message: %v", err)))
			continue
		}
		c.rc.Handle(msg)
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.server.pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			c.flush()
			if c.closeCode != websocket.CloseAbnormalClosure {
				c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(c.closeCode, c.closeText),
					time.Now().Add(writeWait))
			}
			return
		}
	}
}

// flush writes whatever is still queued so replies sent just before a
// close are not lost.
func (c *conn) flush() {
	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
