package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bosley/voxlog/access"
	"github.com/bosley/voxlog/journal"
	"github.com/bosley/voxlog/recorder"
	"github.com/bosley/voxlog/scribe"
	"github.com/bosley/voxlog/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

type wsConnection struct {
	id        uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConnection) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("Failed to send to subscriber - channel full", "connection", c.id)
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

type saveRequest struct {
	Kind string `json:"kind"`
}

type saveResponse struct {
	Interaction journal.Interaction `json:"interaction"`
	Warning     string              `json:"warning,omitempty"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.pipe.Recorder.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	path, err := s.pipe.Start()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"file": path})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	rec, err := s.pipe.Stop()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.Reset(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	saved, err := s.pipe.Save(r.Context(), req.Kind)
	if saved.ID == "" {
		writeError(w, err)
		return
	}

	resp := saveResponse{Interaction: saved}
	if err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.journal.List(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list interactions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []journal.Interaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	s.hub.Add(wsConn)
	slog.Debug("WebSocket subscriber connected", "connection", wsConn.id, "remoteAddr", r.RemoteAddr)

	updates, cancel := s.pipe.Recorder.Subscribe()

	go s.forwardSnapshots(wsConn, updates, cancel)
	go wsConn.writePump()
	go func() {
		wsConn.readPump()
		s.hub.Remove(wsConn.id)
		slog.Debug("WebSocket subscriber disconnected", "connection", wsConn.id)
	}()
}

func (s *Server) forwardSnapshots(c *wsConnection, updates <-chan recorder.Snapshot, cancel func()) {
	defer cancel()
	for {
		select {
		case <-c.done:
			return
		case snap, ok := <-updates:
			if !ok {
				c.close()
				return
			}
			data, err := json.Marshal(WebSocketMessage{
				Type:      "snapshot",
				Timestamp: time.Now(),
				Payload:   snap,
			})
			if err != nil {
				slog.Error("Failed to marshal message", "error", err)
				continue
			}
			c.enqueue(data)
		}
	}
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.close()
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, access.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, recorder.ErrInvalidState),
		errors.Is(err, scribe.ErrAlreadyInProgress),
		errors.Is(err, session.ErrNothingToSave):
		status = http.StatusConflict
	case errors.Is(err, recorder.ErrClosed):
		status = http.StatusServiceUnavailable
	default:
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
