// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/gorilla/websocket"
)

// sseSink frames envelopes as server-sent events, one event per envelope
// with the envelope type as the SSE event name.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Write(env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", env.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Writes that cannot make progress fail after this long so a dead peer
// tears the session down instead of holding it until the TCP timeout.
const wsWriteWait = 10 * time.Second

type wsSink struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (s *wsSink) Write(env domain.Envelope) error {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = wsWriteWait
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(env)
}
