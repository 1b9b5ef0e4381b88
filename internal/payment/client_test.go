package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateOrder_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/orders" {
			t.Fatalf("path = %s, want /v1/orders", r.URL.Path)
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != "key-id" || pass != "key-secret" {
			t.Fatalf("basic auth not passed")
		}

		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != 8000 {
			t.Fatalf("amount = %d, want 8000", req.Amount)
		}
		if req.Receipt != "bid_42" {
			t.Fatalf("receipt = %s, want bid_42", req.Receipt)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_x","amount":8000,"currency":"INR","receipt":"bid_42"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key-id", "key-secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	order, err := client.CreateOrder(ctx, 8000, "bid_42")
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.ID != "order_x" || order.Amount != 8000 {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestCreateOrder_EmptyOrderID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":""}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key-id", "key-secret")

	_, err := client.CreateOrder(context.Background(), 100, "bid_1")
	if err == nil {
		t.Fatalf("expected error for empty order id")
	}
}

func TestCreateOrder_NotConfigured(t *testing.T) {
	var client *Client

	_, err := client.CreateOrder(context.Background(), 100, "bid_1")
	if err == nil {
		t.Fatalf("expected error for nil client")
	}
}
