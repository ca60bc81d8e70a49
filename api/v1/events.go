package v1

import (
	"encoding/json"
	"net/http"

	"nhooyr.io/websocket"
)

// Events upgrades the connection and streams tracker events as JSON text
// messages until the client disconnects.
func (dh *DownloadHandler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		markErr(w, err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "closed") }()

	ch, unsubscribe := dh.trk.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "done")
			return
		case e, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
			b, merr := json.Marshal(e)
			if merr != nil {
				continue
			}
			if werr := conn.Write(ctx, websocket.MessageText, b); werr != nil {
				return
			}
		}
	}
}
