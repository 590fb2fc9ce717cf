package state

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/cashsys/auction-chat/agent/contract"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) (*UpstashRedisStore, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewUpstashRedisStore(UpstashRedisConfig{
		URL:     srv.URL,
		Token:   "test-token",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store, srv
}

func TestUpstashStoreSaveSendsSetCommand(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":"OK"}`))
	})

	st := NewSessionState("sess-1", 4)
	st.AppendUser("hello")

	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if len(gotCommand) < 3 {
		t.Fatalf("command = %#v", gotCommand)
	}
	if gotCommand[0] != "SET" {
		t.Fatalf("command verb = %v, want SET", gotCommand[0])
	}
	if gotCommand[1] != "auctionchat:session:sess-1" {
		t.Fatalf("key = %v", gotCommand[1])
	}

	var stored SessionState
	if err := json.Unmarshal([]byte(gotCommand[2].(string)), &stored); err != nil {
		t.Fatalf("decode stored payload: %v", err)
	}
	if stored.CallerID != 4 {
		t.Fatalf("caller id = %d, want 4", stored.CallerID)
	}
	if len(stored.Conversation) != 1 || stored.Conversation[0].Content != "hello" {
		t.Fatalf("conversation = %#v", stored.Conversation)
	}
}

func TestUpstashStoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	st := NewSessionState("sess-2", 7)
	st.AppendUser("is auction 3 open?")
	st.Conversation = append(st.Conversation, contractx.Message{
		Role:    contractx.RoleAssistant,
		Content: "Auction 3 is open.",
	})
	st.LastAgentUsed = "action_specialist"

	payload, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":` + string(encoded) + `}`))
	})

	loaded, err := store.Load(context.Background(), "sess-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.SessionID != "sess-2" || loaded.CallerID != 7 {
		t.Fatalf("loaded = %#v", loaded)
	}
	if len(loaded.Conversation) != 2 {
		t.Fatalf("conversation length = %d, want 2", len(loaded.Conversation))
	}
	if loaded.LastAgentUsed != "action_specialist" {
		t.Fatalf("last agent = %s", loaded.LastAgentUsed)
	}
}

func TestUpstashStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":null}`))
	})

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestUpstashStoreRedisError(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"WRONGTYPE"}`))
	})

	_, err := store.Load(context.Background(), "sess-3")
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	st := NewSessionState("sess-4", 1)
	st.AppendUser("hi")

	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(context.Background(), "sess-4")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Conversation) != 1 {
		t.Fatalf("conversation = %#v", loaded.Conversation)
	}

	if err := store.Delete(context.Background(), "sess-4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(context.Background(), "sess-4"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound after delete, got %v", err)
	}
}

func TestApplyTurnRejectsShrunkConversation(t *testing.T) {
	t.Parallel()

	st := NewSessionState("sess-5", 1)
	st.AppendUser("first")
	st.AppendUser("second")

	err := st.ApplyTurn(contractx.TurnResult{
		Conversation:  []contractx.Message{{Role: contractx.RoleUser, Content: "first"}},
		LastAgentUsed: "query_pipeline",
	})
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}
