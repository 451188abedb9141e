package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/deepresearch/research-agent/pkg/models"
)

// Sink receives relayed frames, one event per call, in order. A Send error
// means the caller is gone and no further frames should be written.
type Sink interface {
	Send(ctx context.Context, ev models.Event) error
}

// SSESink writes frames as server-sent events: "data: <json>\n\n".
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink writes the streaming headers and status. Nothing else may be
// written to w afterwards except through the sink.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(_ context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WebSocketSink writes each frame as one text message.
type WebSocketSink struct {
	conn *websocket.Conn
}

func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

func (s *WebSocketSink) Send(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}
