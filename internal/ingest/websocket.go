package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads text frames from a market-data websocket.
type WebSocketSource struct {
	conn *websocket.Conn
}

// DialWebSocket connects to url and, when subscribe is non-empty, sends it as
// the first message.
func DialWebSocket(ctx context.Context, url string, subscribe []byte) (*WebSocketSource, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	if len(subscribe) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, subscribe); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ws subscribe %s: %w", url, err)
		}
	}
	return &WebSocketSource{conn: conn}, nil
}

func (s *WebSocketSource) ReadFrame(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		kind, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (s *WebSocketSource) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
