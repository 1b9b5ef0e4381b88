// Package explain предоставляет клиент сервиса генерации текстовых пояснений.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AYUSH1442006/nexi-backend/internal/model"
)

// Fallback возвращается вместо пояснения при любой ошибке внешнего сервиса.
const Fallback = "AI explanation unavailable."

// Explainer описывает контракт генерации пояснения к баллу ставки.
type Explainer interface {
	Explain(ctx context.Context, user *model.User, task *model.Task, bid *model.Bid, score float64) (string, error)
}

// Client инкапсулирует HTTP-взаимодействие с Gemini API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент Gemini API по указанному адресу.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Explain запрашивает короткое пояснение, почему ставка получила данный балл.
func (c *Client) Explain(ctx context.Context, user *model.User, task *model.Task, bid *model.Bid, score float64) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("explain client not configured")
	}

	prompt := buildPrompt(user, task, bid, score)

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/gemini-2.5-flash:generateContent?key=%s", c.baseURL, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("gemini error %d: %s", result.Error.Code, result.Error.Message)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidates in response")
	}

	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("empty explanation text")
	}

	return text, nil
}

func buildPrompt(user *model.User, task *model.Task, bid *model.Bid, score float64) string {
	return fmt.Sprintf(
		`Explain in simple language why this bid is ranked with score %.2f.

User rating: %.1f
User skills: %s
Task required skills: %s
Bid amount: %.2f
Task budget: %.2f
Tasks completed: %d

Give a short, friendly explanation (1-2 lines).`,
		score,
		user.Rating,
		strings.Join(user.Skills, ", "),
		strings.Join(task.RequiredSkills, ", "),
		float64(bid.AmountCents)/100,
		float64(task.BudgetCents)/100,
		user.TasksCompleted,
	)
}
