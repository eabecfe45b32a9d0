package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/practicos/internal/estimate"
)

type Gemini struct {
	APIKey string
	Model  string

	// extra client options, such as an endpoint override
	options []option.ClientOption
}

func NewGemini(key, model string) *Gemini {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{APIKey: key, Model: model}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Enhance(ctx context.Context, text string) (estimate.Enhancement, error) {
	if g.APIKey == "" {
		return estimate.Enhancement{}, errors.New("ai: GEMINI_API_KEY is empty")
	}
	opts := append([]option.ClientOption{option.WithAPIKey(g.APIKey)}, g.options...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return estimate.Enhancement{}, fmt.Errorf("ai: gemini: new client: %w", err)
	}
	defer func() { _ = cl.Close() }()

	m := cl.GenerativeModel(strings.TrimSpace(g.Model))
	m.GenerationConfig = generationConfig()
	resp, err := m.GenerateContent(ctx, genai.Text(BuildPrompt(text)))
	if err != nil {
		return estimate.Enhancement{}, fmt.Errorf("ai: gemini: generate: %w", err)
	}
	return parseGemini(resp)
}

func generationConfig() genai.GenerationConfig {
	return genai.GenerationConfig{
		Temperature:      ptrFloat32(0.2),
		MaxOutputTokens:  ptrInt32(1000),
		ResponseMIMEType: "application/json",
	}
}

func parseGemini(resp *genai.GenerateContentResponse) (estimate.Enhancement, error) {
	txt := firstText(resp)
	if txt == "" {
		return estimate.Enhancement{}, ErrEmptyResponse
	}
	return ParseResponse(txt)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

func ptrInt32(v int32) *int32 { return &v }
