package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
)

type memStore struct {
	changes []types.ChangeEvent
}

func (m *memStore) ApplyChange(ctx context.Context, ev types.ChangeEvent) error {
	m.changes = append(m.changes, ev)
	return nil
}

func (m *memStore) VersionMetadata(ctx context.Context) (types.DataVersion, bool) {
	return types.DataVersion{}, false
}

func (m *memStore) SetVersionMetadata(ctx context.Context, v types.DataVersion) error {
	return errors.New("no version before first sync")
}

func TestWebsocketDialerEndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime/v1/websocket", r.URL.Path)
		assert.Equal(t, "test-anon-key", r.URL.Query().Get("apikey"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join Frame
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		reply, _ := newFrame(join.Topic, eventReply, join.Ref, replyPayload{Status: "ok"})
		_ = conn.WriteJSON(reply)

		change, _ := newFrame(channelTopic, eventChange, "", map[string]interface{}{
			"data": map[string]interface{}{
				"table":      "businesses",
				"type":       "DELETE",
				"old_record": map[string]string{"id": "b1"},
			},
		})
		_ = conn.WriteJSON(change)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	state := directory.NewState()
	state.Replace(nil, []types.Business{{ID: "b1", ShopName: "Sharma Kirana"}})
	store := &memStore{}
	rec := New(Config{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/v1/websocket?apikey=test-anon-key&vsn=1.0.0",
		Heartbeat: time.Hour,
	}, state, store, &fakeAggregates{}, zaptest.NewLogger(t).Sugar())

	got := make(chan types.ChangeEvent, 1)
	sub, err := rec.Subscribe(context.Background(), func(ev types.ChangeEvent) { got <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case ev := <-got:
		assert.Equal(t, "b1", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}
	assert.Equal(t, 0, state.Len())
}

func TestWebsocketDialerRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := WebsocketDialer(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
}
