package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// errSessionClosed is returned by recv once the websocket is gone.
var errSessionClosed = errors.New("kernel channels closed")

// Session is an open kernel channels websocket. A single background
// goroutine reads frames; callers receive them through recv.
type Session struct {
	id       string
	conn     *websocket.Conn
	incoming chan *Message

	mu      sync.Mutex
	readErr error

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, id string) *Session {
	s := &Session{
		id:       id,
		conn:     conn,
		incoming: make(chan *Message, 64),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	defer close(s.incoming)
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		select {
		case s.incoming <- &msg:
		case <-s.done:
			return
		}
	}
}

// send writes a request on the given channel and returns its msg_id.
func (s *Session) send(channel, msgType string, content any) (string, error) {
	msgID := uuid.NewString()
	msg := map[string]any{
		"header": Header{
			MsgID:    msgID,
			MsgType:  msgType,
			Username: "regimerun",
			Session:  s.id,
			Date:     time.Now().UTC().Format(time.RFC3339Nano),
			Version:  protocolVersion,
		},
		"parent_header": map[string]any{},
		"metadata":      map[string]any{},
		"content":       content,
		"channel":       channel,
		"buffers":       []any{},
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", msgType, err)
	}
	return msgID, nil
}

// recv blocks until the next message arrives or ctx is done.
func (s *Session) recv(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-s.incoming:
		if !ok {
			s.mu.Lock()
			defer s.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", errSessionClosed, s.readErr)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the websocket and stops the reader.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
