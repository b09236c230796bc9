package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

func TestWebSocketTransportRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(msg), `"load"`) {
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"type":"load","path":"a.txt","content":"hello","current_user_id":1}`))
			}
		}
	}))
	defer server.Close()

	l := startLoop(t)
	tr := &WebSocketTransport{URL: "ws" + strings.TrimPrefix(server.URL, "http"), Sched: l}
	m := NewManager(tr, l, Options{})

	frames := make(chan *protocol.Frame, 1)
	opened := make(chan struct{}, 1)
	l.Post(func() {
		m.SetOnFrame(func(f *protocol.Frame) { frames <- f })
		m.SetOnStateChange(func(e StateEvent) {
			if e.State == StateOpen {
				m.Send(protocol.Load("a.txt"))
				opened <- struct{}{}
			}
		})
		m.Connect()
	})

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for open")
	}

	select {
	case f := <-frames:
		if f.Type != protocol.MessageTypeLoad || f.Content != "hello" || f.CurrentUserID != 1 {
			t.Errorf("unexpected frame: %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for load response")
	}

	l.Call(context.Background(), m.Close)
}

func TestWebSocketTransportReportsDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	l := startLoop(t)
	tr := &WebSocketTransport{URL: "ws" + strings.TrimPrefix(server.URL, "http"), Sched: l}

	closed := make(chan error, 1)
	tr.Open(context.Background(), &recordingEvents{closed: closed})

	select {
	case err := <-closed:
		if err == nil {
			t.Error("expected a dial error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dial failure")
	}
}

type recordingEvents struct {
	closed chan error
}

func (r *recordingEvents) Opened(ch Channel)     { ch.Close() }
func (r *recordingEvents) Received(data []byte)  {}
func (r *recordingEvents) Closed(err error) {
	if err == nil {
		err = errors.New("closed")
	}
	r.closed <- err
}
