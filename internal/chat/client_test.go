package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

func TestMessagesRequestShape(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]types.ChatMessage{{ID: "m1", Text: "hi"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok123")
	msgs, err := c.Messages(context.Background(), "u1", 10, 20)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("unexpected page: %v", msgs)
	}
	if gotPath != "/messages/u1" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "limit=10&offset=20" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
}

func TestSendDecodesResolvedMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req sendRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(types.ChatMessage{
			ID:          "m42",
			RecipientID: req.RecipientID,
			Text:        req.Text,
			IsAdmin:     true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	msg, err := c.Send(context.Background(), "u1", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "m42" || msg.Text != "hello" || msg.RecipientID != "u1" {
		t.Errorf("unexpected resolved message: %+v", msg)
	}
}

func TestUnauthorizedIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired")
	if _, err := c.Messages(context.Background(), "u1", 10, 0); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	err := c.MarkRead(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected an error for status 500")
	}
}

func TestDeleteAndUnread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/messages/m1":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/messages/unread":
			json.NewEncoder(w).Encode(map[string]int{"u1": 3})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if err := c.Delete(context.Background(), "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	counts, err := c.UnreadCounts(context.Background())
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if counts["u1"] != 3 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
