package events

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator dashboards are served from other origins
	},
}

// WSHandler upgrades to a websocket feed. ?language=en follows one catalog;
// a "SUBSCRIBE <language>" text message switches it later.
func WSHandler(hub *Hub, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events-ws")

	return func(c *gin.Context) {
		language := strings.TrimSpace(c.Query("language"))
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		sub, err := hub.SubscribeWS(ws, language)
		if err != nil {
			logger.Warn("welcome failed", "remote", c.Request.RemoteAddr, "error", err)
			return
		}
		logger.Info("client connected", "remote", c.Request.RemoteAddr, "language", language)

		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			if lang, ok := ParseSubscribe(string(msg)); ok {
				if err := hub.Follow(sub, lang); err != nil {
					break
				}
			}
		}

		hub.Unsubscribe(sub)
		logger.Info("client disconnected", "remote", c.Request.RemoteAddr)
	}
}
