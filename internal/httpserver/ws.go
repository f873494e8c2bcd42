package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/starmatch/internal/game"
	"github.com/robalobadob/starmatch/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// wsAction is an incoming command from the browser.
type wsAction struct {
	Type   string `json:"type"` // "select" | "restart"
	Number int    `json:"number,omitempty"`
}

// wsMessage is pushed to the browser.
type wsMessage struct {
	Type  string         `json:"type"` // "snapshot" | "error"
	Round *game.Snapshot `json:"round,omitempty"`
	Error string         `json:"error,omitempty"`
}

// checkOrigin accepts same-host requests, non-browser clients, and the client origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.opts.ClientOrigin || origin == "http://"+r.Host || origin == "https://"+r.Host
}

// handleWS streams every snapshot of a session and accepts tile clicks.
// The writer runs on this goroutine; a reader goroutine forwards actions.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	snaps, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	replies := make(chan wsMessage, 8)
	done := make(chan struct{})
	go s.readActions(conn, sess, replies, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	first := sess.Snapshot()
	if err := writeWS(conn, wsMessage{Type: "snapshot", Round: &first}); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), time.Now().Add(writeWait))
			return
		case snap, ok := <-snaps:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), time.Now().Add(writeWait))
				return
			}
			if err := writeWS(conn, wsMessage{Type: "snapshot", Round: &snap}); err != nil {
				return
			}
		case msg := <-replies:
			if err := writeWS(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readActions applies incoming actions until the peer goes away, then closes done.
// Successful actions are echoed by the session subscription; only errors reply here.
func (s *Server) readActions(conn *websocket.Conn, sess *session.Session, replies chan<- wsMessage, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reply := func(m wsMessage) {
		select {
		case replies <- m:
		default:
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", sess.ID).Msg("websocket closed")
			}
			return
		}
		var a wsAction
		if err := json.Unmarshal(data, &a); err != nil {
			reply(wsMessage{Type: "error", Error: "bad_json"})
			continue
		}
		switch a.Type {
		case "select":
			sess.Select(a.Number)
		case "restart":
			if _, err := sess.Restart(); errors.Is(err, session.ErrNotRestartable) {
				reply(wsMessage{Type: "error", Error: "not_restartable"})
			}
		default:
			reply(wsMessage{Type: "error", Error: "unknown_action"})
		}
	}
}

func writeWS(conn *websocket.Conn, m wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}
