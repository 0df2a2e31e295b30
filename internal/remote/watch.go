package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbarrios/gastosync/internal/events"
)

// userWatch is one live subscription to a user document. The server
// pushes a UserEvent whenever the document changes out of band, such
// as a billing webhook rewriting plan_id or plan_expires_at.
type userWatch struct {
	conn   *websocket.Conn
	logger *events.Logger

	mu     sync.Mutex
	closed bool

	out  chan UserEvent
	done chan struct{}

	pingInterval time.Duration
	pongTimeout  time.Duration
}

// WatchUser opens a websocket stream of user-document updates. The
// returned channel closes when ctx is cancelled or the connection
// drops; callers decide whether to redial.
func (c *HTTPClient) WatchUser(ctx context.Context, ownerID string) (<-chan UserEvent, error) {
	wsURL := c.baseURL
	if len(wsURL) > 4 && wsURL[:4] == "http" {
		wsURL = "ws" + wsURL[4:]
	}
	wsURL += "/v1/users/" + ownerID + "/watch"

	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent)
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("watch connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("watch connect failed: %w", err)
	}

	w := &userWatch{
		conn:         conn,
		logger:       c.logger.WithField("owner_id", ownerID),
		out:          make(chan UserEvent, 16),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		pongTimeout:  10 * time.Second,
	}

	go w.readLoop()
	go w.pingLoop()
	go func() {
		select {
		case <-ctx.Done():
			w.close()
		case <-w.done:
		}
	}()

	w.logger.Info("User watch connected")
	return w.out, nil
}

func (w *userWatch) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.done)

	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = w.conn.Close()
}

func (w *userWatch) readLoop() {
	defer func() {
		w.close()
		close(w.out)
	}()

	w.conn.SetPongHandler(func(string) error {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.pongTimeout + w.pingInterval))
		return nil
	})

	for {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.pongTimeout + w.pingInterval))

		var event UserEvent
		if err := w.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				w.logger.WithError(err).Error("Watch read error")
			}
			return
		}

		w.logger.WithField("updated_at", event.Doc.UpdatedAt).Debug("User document changed")

		select {
		case w.out <- event:
		case <-w.done:
			return
		}
	}
}

func (w *userWatch) pingLoop() {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.logger.WithError(err).Error("Ping failed")
				return
			}
		case <-w.done:
			return
		}
	}
}
