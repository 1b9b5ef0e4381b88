package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Обработчик в форме API заданий: читает JSON-тело и отвечает JSON-ом.
func gzipTestHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req struct {
		Title  string  `json:"title"`
		Budget float64 `json:"budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  req.Title,
		"budget": req.Budget,
		"status": "OPEN",
	})
}

func TestGzipMiddleware(t *testing.T) {
	taskJSON := `{"title":"Fix sink","budget":150.75}`

	tests := []struct {
		name            string
		acceptEncoding  string
		gzipRequestBody bool
		wantEncoding    string
	}{
		{
			name:           "plain request, client accepts gzip",
			acceptEncoding: "gzip",
			wantEncoding:   "gzip",
		},
		{
			name:           "plain request, client does not accept gzip",
			acceptEncoding: "",
			wantEncoding:   "",
		},
		{
			name:            "gzip request body, gzip response",
			acceptEncoding:  "gzip",
			gzipRequestBody: true,
			wantEncoding:    "gzip",
		},
		{
			name:            "gzip request body, plain response",
			acceptEncoding:  "",
			gzipRequestBody: true,
			wantEncoding:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestBody io.Reader = strings.NewReader(taskJSON)
			if tt.gzipRequestBody {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				if _, err := gz.Write([]byte(taskJSON)); err != nil {
					t.Fatalf("write gzip: %v", err)
				}
				if err := gz.Close(); err != nil {
					t.Fatalf("close gzip: %v", err)
				}
				requestBody = &buf
			}

			req := httptest.NewRequest(http.MethodPost, "/api/tasks/", requestBody)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			if tt.gzipRequestBody {
				req.Header.Set("Content-Encoding", "gzip")
			}

			rec := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(gzipTestHandler)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding = %q, want %q", ce, tt.wantEncoding)
			}

			var reader io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}

			body, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}

			var resp struct {
				Title  string  `json:"title"`
				Budget float64 `json:"budget"`
				Status string  `json:"status"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("unmarshal response %q: %v", string(body), err)
			}
			if resp.Title != "Fix sink" || resp.Budget != 150.75 || resp.Status != "OPEN" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestGzipMiddleware_BadCompressedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(gzipTestHandler)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}
