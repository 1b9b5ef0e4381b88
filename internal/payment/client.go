package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Order описывает заказ, созданный на стороне платёжного шлюза.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	keyID      string
	secret     string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент платёжного шлюза по указанному адресу и ключам.
func NewClient(baseURL, keyID, secret string) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		secret:     secret,
		httpClient: c,
	}
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

// CreateOrder создаёт заказ на оплату в минорных единицах валюты.
// Receipt формируется из идентификатора ставки и позволяет шлюзу
// сопоставить платёж с ней.
func (c *Client) CreateOrder(ctx context.Context, amountCents int64, receipt string) (*Order, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("payment gateway client not configured")
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:         amountCents,
		Currency:       "INR",
		Receipt:        receipt,
		PaymentCapture: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if order.ID == "" {
		return nil, fmt.Errorf("gateway returned empty order id")
	}

	return &order, nil
}
