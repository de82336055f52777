package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/logger"
	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini returned no text")

// LLMRepoImpl calls the Gemini generateContent REST endpoint.
type LLMRepoImpl struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

func NewLLMRepo(endpoint, model, apiKey string, timeout time.Duration, l *zap.Logger) *LLMRepoImpl {
	return &LLMRepoImpl{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.OrNop(l).With(zap.String("component", "gemini")),
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

func (r *LLMRepoImpl) FilterURLs(ctx context.Context, results []entity.SearchResult) (string, error) {
	prompt, err := urlFilter(results)
	if err != nil {
		return "", fmt.Errorf("render url filter prompt: %w", err)
	}
	return r.generate(ctx, "filter_urls", prompt)
}

func (r *LLMRepoImpl) FilterEventLinks(ctx context.Context, links []string, pageURL string) (string, error) {
	prompt, err := eventLinks(links, pageURL)
	if err != nil {
		return "", fmt.Errorf("render event link prompt: %w", err)
	}
	return r.generate(ctx, "filter_event_links", prompt)
}

func (r *LLMRepoImpl) ExtractRecords(ctx context.Context, pages []entity.PageContent) (string, error) {
	prompt, err := extraction(pages)
	if err != nil {
		return "", fmt.Errorf("render extraction prompt: %w", err)
	}
	return r.generate(ctx, "extract", prompt)
}

// generate sends prompt and returns the concatenated text of the first candidate.
func (r *LLMRepoImpl) generate(ctx context.Context, op, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: 0.1, ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", r.endpoint, r.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", r.apiKey)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &repository.StatusError{Op: "gemini " + op, StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	r.logger.Debug("gemini call finished",
		zap.String("operation", op),
		zap.Int("prompt_length", len(prompt)),
		zap.Int("response_length", text.Len()),
		zap.String("finish_reason", out.Candidates[0].FinishReason),
		zap.Duration("duration", time.Since(start)),
	)
	return text.String(), nil
}
