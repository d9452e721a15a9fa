package server

import (
	"net/http"
	"time"

	"github.com/ayusman/humanverify/internal/geometry"
	"github.com/ayusman/humanverify/internal/overlay"
	"github.com/ayusman/humanverify/internal/server/api"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// OverlayFeed is the overlay state a socket client follows.
type OverlayFeed interface {
	Subscribe() (<-chan overlay.State, func())
	SetViewSize(size geometry.Size) error
}

// viewMessage is sent by clients when their drawing surface changes size.
type viewMessage struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OverlaySocket pushes every overlay change to websocket clients.
type OverlaySocket struct {
	feed OverlayFeed
}

// NewOverlaySocket creates a new OverlaySocket following feed.
func NewOverlaySocket(feed OverlayFeed) *OverlaySocket {
	return &OverlaySocket{feed: feed}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *OverlaySocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg viewMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := h.feed.SetViewSize(geometry.Size{Width: msg.Width, Height: msg.Height}); err != nil {
				log.Debug().Err(err).Msg("ignoring view size from client")
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case s, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(api.ToOverlayResponse(s)); err != nil {
				return
			}
		}
	}
}
