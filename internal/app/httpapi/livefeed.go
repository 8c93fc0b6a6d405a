package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campusmess/messhall/internal/app/core"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
)

// CheckOrigin defers to originAllowed, which applies the CORS allow list.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// liveFeed streams the admin's mess rating events over a websocket.
func (h *handler) liveFeed(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	if !p.IsAdmin() {
		h.fail(w, r, core.NewAccessDeniedError("live feed", p.MessID, p.ID, "only mess admins may follow the live feed"))
		return
	}
	if !h.originAllowed(r.Header.Get("Origin")) {
		h.fail(w, r, core.NewAccessDeniedError("live feed", p.MessID, p.ID, "origin not allowed"))
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("live feed upgrade failed")
		return
	}
	defer ws.Close()

	events, cancel := h.app.Feed.Subscribe(p.FacilityID, p.MessID)
	defer cancel()
	log := h.log.WithField("user", p.ID).WithField("mess_id", p.MessID)
	log.Info("live feed subscriber connected")

	// The read loop only services control frames and notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Info("live feed subscriber disconnected")
			return
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ws.WriteJSON(e); err != nil {
				log.WithError(err).Debug("live feed write failed")
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *handler) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
