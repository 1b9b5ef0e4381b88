package explain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AYUSH1442006/nexi-backend/internal/model"
)

func testEntities() (*model.User, *model.Task, *model.Bid) {
	user := &model.User{
		Rating:         4.5,
		Skills:         []string{"plumbing"},
		TasksCompleted: 10,
	}
	task := &model.Task{
		BudgetCents:    10000,
		RequiredSkills: []string{"plumbing"},
	}
	bid := &model.Bid{AmountCents: 8000}
	return user, task, bid
}

func TestExplain_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if !strings.HasPrefix(r.URL.Path, "/v1/models/gemini-2.5-flash:generateContent") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Fatalf("api key not passed, query: %s", r.URL.RawQuery)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Fatalf("unexpected request shape: %+v", req)
		}
		if !strings.Contains(req.Contents[0].Parts[0].Text, "score 83.50") {
			t.Fatalf("prompt misses score: %s", req.Contents[0].Parts[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Strong bid under budget."}]}}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	user, task, bid := testEntities()
	text, err := client.Explain(ctx, user, task, bid, 83.5)
	if err != nil {
		t.Fatalf("Explain error: %v", err)
	}
	if text != "Strong bid under budget." {
		t.Fatalf("text = %q", text)
	}
}

func TestExplain_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	user, task, bid := testEntities()
	_, err := client.Explain(context.Background(), user, task, bid, 50)
	if err == nil {
		t.Fatalf("expected error for API error payload")
	}
}

func TestExplain_EmptyCandidates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	user, task, bid := testEntities()
	_, err := client.Explain(context.Background(), user, task, bid, 50)
	if err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}

func TestExplain_NotConfigured(t *testing.T) {
	var client *Client

	user, task, bid := testEntities()
	_, err := client.Explain(context.Background(), user, task, bid, 50)
	if err == nil {
		t.Fatalf("expected error for nil client")
	}
}
