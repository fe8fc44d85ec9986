package tasksbridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jrazmi/taskdeck/bridge/scaffolding/errs"
	"github.com/jrazmi/taskdeck/core/reminders"
	"github.com/jrazmi/taskdeck/core/tasksession"
	"github.com/jrazmi/taskdeck/infrastructure/web"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The REST layer already enforces CORS and bearer auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// httpStream upgrades the request to a websocket and pushes every state
// change and fired notification of the caller's session until either side
// hangs up.
func (b *bridge) httpStream(ctx context.Context, r *http.Request) web.Encoder {
	s, err := b.session(ctx)
	if err != nil {
		return asErrs(err)
	}

	w := web.GetWriter(ctx)
	if w == nil {
		return errs.Newf(errs.Internal, "response writer not available")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		b.log.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return web.NewNoResponse()
	}

	states, cancelStates := s.Watch()
	defer cancelStates()
	notifs, cancelNotifs := s.WatchNotifications()
	defer cancelNotifs()

	go b.readLoop(conn)
	b.writeLoop(ctx, conn, states, notifs)

	return web.NewNoResponse()
}

// readLoop discards client frames and surfaces the close.
func (b *bridge) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}

func (b *bridge) writeLoop(ctx context.Context, conn *websocket.Conn, states <-chan tasksession.State, notifs <-chan reminders.Notification) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			state := MarshalStateToBridge(st)
			if err := b.writeFrame(conn, StreamFrame{Kind: "state", State: &state}); err != nil {
				b.log.WarnContext(ctx, "websocket write failed", "error", err)
				return
			}
		case n, ok := <-notifs:
			if !ok {
				// Session teardown also closes the state channel, which owns
				// the close handshake.
				notifs = nil
				continue
			}
			notif := MarshalNotificationToBridge(n)
			if err := b.writeFrame(conn, StreamFrame{Kind: "notification", Notification: &notif}); err != nil {
				b.log.WarnContext(ctx, "websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *bridge) writeFrame(conn *websocket.Conn, frame StreamFrame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
