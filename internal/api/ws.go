package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var frameUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	// The agent binds to localhost and the route sits behind the bearer
	// token, so origin filtering adds nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// framesHandler upgrades to a WebSocket and relays engine preview frames to
// the UI until either side goes away. Messages are binary, in the engine's
// pixel-rows-plus-trailer format.
func framesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := frameUpgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("frame socket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		frames, unsubscribe := cfg.Frames.Subscribe()
		defer unsubscribe()

		// The client sends nothing, but reading is how the close handshake
		// and a dropped peer are noticed.
		peerGone := make(chan struct{})
		go func() {
			defer close(peerGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-peerGone:
				return
			case <-r.Context().Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					return
				}
			}
		}
	}
}
