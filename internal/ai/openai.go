package ai

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

	"github.com/practicos/internal/estimate"
)

const DefaultOpenAIURL = "https://api.openai.com/v1"

type OpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

func NewOpenAI(key, model string) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		APIKey:  key,
		Model:   model,
		BaseURL: DefaultOpenAIURL,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAI) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Enhance(ctx context.Context, text string) (estimate.Enhancement, error) {
	if o.APIKey == "" {
		return estimate.Enhancement{}, errors.New("ai: OPENAI_API_KEY is empty")
	}
	request, err := o.buildRequest(ctx, text)
	if err != nil {
		return estimate.Enhancement{}, fmt.Errorf("ai: openai: build request: %w", err)
	}
	response, err := o.httpc.Do(request)
	if err != nil {
		return estimate.Enhancement{}, fmt.Errorf("ai: openai: request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	content, err := processResponse(response)
	if err != nil {
		return estimate.Enhancement{}, fmt.Errorf("ai: openai: %w", err)
	}
	return ParseResponse(content)
}

func (o *OpenAI) buildRequest(ctx context.Context, text string) (*http.Request, error) {
	body := chatRequest{
		Model: o.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Responde solo con un objeto JSON válido."},
			{Role: "user", Content: BuildPrompt(text)},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
	}
	body.ResponseFormat.Type = "json_object"
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(o.BaseURL, "/") + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+o.APIKey)
	return request, nil
}

func processResponse(response *http.Response) (string, error) {
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			return "", fmt.Errorf("api error (%d): %s", response.StatusCode, ae.Error.Message)
		}
		return "", fmt.Errorf("api error (%d): %s", response.StatusCode, strings.TrimSpace(string(raw)))
	}
	var result chatResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}
