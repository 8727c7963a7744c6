package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the envelope for both directions on /ws.
//
//	client → server: {"type":"message","content":"...","session":"..."}
//	server → client: {"type":"reply","content":"..."} | {"type":"error","error":"..."}
//	client → server: {"type":"ping"}  server → client: {"type":"pong","mode":"dev"}
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// wsConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket does not support concurrent writes.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) WriteJSONSafe(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *wsConn) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (c *wsConn) WriteCloseSafe(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := &wsConn{Conn: raw}
	peer := r.RemoteAddr
	s.logger.Debug("websocket connected", "peer", peer)

	s.wsMu.Lock()
	s.wsConns[conn] = true
	s.wsMu.Unlock()

	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
		raw.Close()
		s.wsMu.Lock()
		delete(s.wsConns, conn)
		s.wsMu.Unlock()
		s.logger.Debug("websocket disconnected", "peer", peer)
	}()

	_ = raw.SetReadDeadline(time.Now().Add(wsReadTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	ctx := r.Context()
	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", "peer", peer, "err", err)
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.WriteJSONSafe(wsMessage{Type: "error", Error: "invalid JSON"})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = conn.WriteJSONSafe(wsMessage{Type: "pong", Mode: s.mode.String()})

		case "message":
			if msg.Content == "" {
				_ = conn.WriteJSONSafe(wsMessage{Type: "error", Error: "content is required"})
				continue
			}
			inflight.Add(1)
			go func(m wsMessage) {
				defer inflight.Done()
				reply, err := s.chat(ctx, m.Session, m.Content)
				if err != nil {
					_ = conn.WriteJSONSafe(wsMessage{Type: "error", Error: err.Error(), Session: m.Session})
					return
				}
				_ = conn.WriteJSONSafe(wsMessage{Type: "reply", Content: reply, Session: m.Session})
			}(msg)

		default:
			_ = conn.WriteJSONSafe(wsMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}

// heartbeatLoop pings every connection so idle clients keep their read
// deadline fresh and dead ones are dropped.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pingAll()
		}
	}
}

func (s *Server) pingAll() {
	s.wsMu.Lock()
	conns := make([]*wsConn, 0, len(s.wsConns))
	for c := range s.wsConns {
		conns = append(conns, c)
	}
	s.wsMu.Unlock()

	var dead []*wsConn
	for _, c := range conns {
		if err := c.WritePing(); err != nil {
			dead = append(dead, c)
		}
	}

	if len(dead) > 0 {
		s.wsMu.Lock()
		for _, c := range dead {
			delete(s.wsConns, c)
			c.Close()
		}
		s.wsMu.Unlock()
	}
}

// closeAllWS closes all WebSocket connections (called on shutdown).
func (s *Server) closeAllWS() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for c := range s.wsConns {
		_ = c.WriteCloseSafe(websocket.CloseGoingAway, "server shutdown")
		c.Close()
		delete(s.wsConns, c)
	}
}

// WSConnectionCount returns the number of active WebSocket connections.
func (s *Server) WSConnectionCount() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.wsConns)
}
