package server

import (
	"log"
	"net/http"
	"time"

	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const writeWait = 2 * time.Second

// landmarksMessage is one live result sent to WebSocket clients.
type landmarksMessage struct {
	Result    *pose.FrameResult `json:"result"`
	Timestamp int64             `json:"timestamp"`
}

// LandmarksHandler streams live pose results over WebSocket.
type LandmarksHandler struct {
	live LiveSource
}

// NewLandmarksHandler creates a new LandmarksHandler reading from live.
func NewLandmarksHandler(live LiveSource) *LandmarksHandler {
	return &LandmarksHandler{live: live}
}

// ServeHTTP upgrades the connection and forwards every live result until
// either side closes.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	results, cancel := h.live.Subscribe()
	defer cancel()

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := landmarksMessage{Result: result, Timestamp: time.Now().UnixMilli()}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
