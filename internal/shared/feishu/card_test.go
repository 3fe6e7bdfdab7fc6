package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStructureChangeCard(t *testing.T) {
	card := NewStructureChangeCard(StructureChange{
		TreeName:     "T1",
		VersionName:  "T1 v1",
		ChangeType:   "share_structure",
		Significance: 2,
		Stakeholders: []string{"u1", "u2"},
	})
	require.NotNil(t, card.Header)
	assert.Equal(t, "orange", card.Header.Template)

	raw, err := json.Marshal(card)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "share_structure")
	assert.Contains(t, string(raw), "u1, u2")
	assert.Contains(t, string(raw), "system")
}

func TestSendCardUsesCachedToken(t *testing.T) {
	var tokenCalls, messageCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/app_access_token/internal"):
			atomic.AddInt32(&tokenCalls, 1)
			w.Write([]byte(`{"code":0,"msg":"ok","app_access_token":"tok","expire":7200}`))
		case r.URL.Path == "/open-apis/im/v1/messages":
			atomic.AddInt32(&messageCalls, 1)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "chat_id", r.URL.Query().Get("receive_id_type"))
			w.Write([]byte(`{"code":0,"msg":"ok","data":{"message_id":"m1"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	card := NewStructureChangeCard(StructureChange{TreeName: "T", ChangeType: "remove_node", Significance: 2})

	require.NoError(t, c.SendCard(context.Background(), "oc_1", card))
	require.NoError(t, c.SendCard(context.Background(), "oc_1", card))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&messageCalls))
}

func TestSendCardAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/app_access_token/internal") {
			w.Write([]byte(`{"code":0,"app_access_token":"tok","expire":7200}`))
			return
		}
		w.Write([]byte(`{"code":230001,"msg":"bot not in chat"}`))
	}))
	defer srv.Close()

	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	err := c.SendUserCard(context.Background(), "ou_1", InteractiveCard{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230001")
}
