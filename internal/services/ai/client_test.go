package ai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/services/ai"
)

func chatResponse(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestAnalyzeEntryParsesInsights(t *testing.T) {
	var gotPath string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"summary":"A deep dive into Go queues.","sentiment":"positive","readability_score":72.5,"engagement_score":430,"keywords":["go","queues"],"engagement_types":["Shared","Liked"]}`)))
	}))
	defer server.Close()

	client := ai.NewClient(ai.Config{APIKey: "key", BaseURL: server.URL, Model: "test-model"})
	insights, err := client.AnalyzeEntry(context.Background(), "Queues in Go", "Long article body.")
	if err != nil {
		t.Fatalf("AnalyzeEntry: %v", err)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("expected chat completions path, got %q", gotPath)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if insights.Summary != "A deep dive into Go queues." {
		t.Fatalf("unexpected summary %q", insights.Summary)
	}
	if insights.Readability != 72.5 || insights.Engagement != 430 {
		t.Fatalf("unexpected scores: %+v", insights)
	}
	if len(insights.Keywords) != 2 || len(insights.EngagementTypes) != 2 {
		t.Fatalf("unexpected lists: %+v", insights)
	}
}

func TestAnalyzeEntryStripsCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fenced := "```json\n{\"summary\":\"Fenced.\",\"sentiment\":\"Neutral\"}\n```"
		_, _ = w.Write([]byte(chatResponse(fenced)))
	}))
	defer server.Close()

	client := ai.NewClient(ai.Config{APIKey: "key", BaseURL: server.URL, Model: "test-model"})
	insights, err := client.AnalyzeEntry(context.Background(), "", "body")
	if err != nil {
		t.Fatalf("AnalyzeEntry: %v", err)
	}
	if insights.Summary != "Fenced." {
		t.Fatalf("unexpected summary %q", insights.Summary)
	}
}

func TestAnalyzeEntryRetriesRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chatResponse(`{"summary":"ok","sentiment":"Neutral"}`)))
	}))
	defer server.Close()

	var slept []time.Duration
	client := ai.NewClient(
		ai.Config{APIKey: "key", BaseURL: server.URL, Model: "test-model"},
		ai.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	if _, err := client.AnalyzeEntry(context.Background(), "", "body"); err != nil {
		t.Fatalf("AnalyzeEntry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected one 1s sleep honoring Retry-After, got %v", slept)
	}
}

func TestAnalyzeEntryDoesNotRetryClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := ai.NewClient(
		ai.Config{APIKey: "key", BaseURL: server.URL, Model: "test-model"},
		ai.WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.AnalyzeEntry(context.Background(), "", "body"); err == nil {
		t.Fatal("expected error for 401")
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	var gotPath string
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.25,-0.5,1.0]}]}`))
	}))
	defer server.Close()

	client := ai.NewClient(ai.Config{
		APIKey:             "key",
		BaseURL:            server.URL,
		EmbeddingFastModel: "embed-fast",
	})
	vector, err := client.EmbedFast(context.Background(), "some text")
	if err != nil {
		t.Fatalf("EmbedFast: %v", err)
	}
	if gotPath != "/embeddings" {
		t.Fatalf("expected embeddings path, got %q", gotPath)
	}
	if gotModel != "embed-fast" {
		t.Fatalf("expected fast model, got %q", gotModel)
	}
	if len(vector) != 3 || vector[2] != 1.0 {
		t.Fatalf("unexpected vector %v", vector)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatResponse(`{"ok":true}`)))
	}))
	defer server.Close()

	client := ai.NewClient(ai.Config{APIKey: "key", BaseURL: server.URL, Model: "test-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestDecodeModelJSONExtractsEmbeddedObject(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := ai.DecodeModelJSON("Here is the result: {\"ok\":true} hope that helps", &out); err != nil {
		t.Fatalf("DecodeModelJSON: %v", err)
	}
	if !out.OK {
		t.Fatal("expected ok=true")
	}
}
