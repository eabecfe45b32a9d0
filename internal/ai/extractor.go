// Package ai asks a language model for the project metadata and key items of
// an estimate that keyword extraction cannot find.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/practicos/internal/app"
	"github.com/practicos/internal/estimate"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/metrics"
)

var ErrEmptyResponse = errors.New("ai: empty response")

// MaxPromptRunes bounds the document text sent to the model.
const MaxPromptRunes = 4000

type Extractor interface {
	Name() string
	Enhance(ctx context.Context, text string) (estimate.Enhancement, error)
}

// Disabled is used when AI extraction is switched off or has no API key.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Enhance(context.Context, string) (estimate.Enhancement, error) {
	return estimate.Enhancement{}, nil
}

// FromConfig picks the extractor for cfg, wrapped with rate limiting and the
// configured timeout.
func FromConfig(cfg *app.Config) Extractor {
	logger := log.WithComponent("ai")
	if !cfg.UseAIExtraction {
		logger.Info().Msg("AI extraction disabled")
		return Disabled{}
	}
	if cfg.AIKey() == "" {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("AI extraction enabled but no API key provided")
		return Disabled{}
	}
	var inner Extractor
	switch cfg.AIProvider {
	case app.ProviderGemini:
		inner = NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		inner = NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	return NewLimited(inner, rate.Limit(cfg.AIRateLimit), cfg.AITimeout)
}

// Limited throttles and bounds calls to another Extractor.
type Limited struct {
	next    Extractor
	limiter *rate.Limiter
	timeout time.Duration
}

func NewLimited(next Extractor, perSecond rate.Limit, timeout time.Duration) *Limited {
	return &Limited{next: next, limiter: rate.NewLimiter(perSecond, 1), timeout: timeout}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Enhance(ctx context.Context, text string) (estimate.Enhancement, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return estimate.Enhancement{}, fmt.Errorf("ai: wait for rate limiter: %w", err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	out, err := l.next.Enhance(ctx, text)
	if err != nil {
		metrics.IncAIRequest(l.Name(), "error")
		return estimate.Enhancement{}, err
	}
	metrics.IncAIRequest(l.Name(), "ok")
	return out, nil
}

const promptTemplate = `Eres un experto en presupuestos.
Estás analizando un documento de presupuesto de construcción.

El documento contiene el siguiente texto:
%s

Basándote en el texto anterior, extrae ÚNICAMENTE la siguiente información en formato JSON:

1. Metadatos del proyecto: cliente, celular, telefono_fijo, direccion, fecha, e-mail, orden_trabajo
2. Detalle de materiales y precios: material, unidades, precio_unitario, precio_total, cantidad_m2, mano_obra, total_material, total_mano_obra, total_general

Devuelve el resultado como un objeto JSON con la siguiente estructura:
{
    "enhanced_metadata": {
        "client": "string",
        "phone": "string",
        "phone_fixed": "string",
        "address": "string",
        "email": "string",
        "date": "string",
        "work_order": "string",
        "quantity_m2": "number",
        "mano_obra": "number",
        "material": "number",
        "total_material": "number",
        "total_mano_obra": "number",
        "total_general": "number"
    },
    "key_items": [
        {
            "material": "string",
            "units": "string",
            "unit_price": "number",
            "total_price": "number"
        }
    ]
}`

// BuildPrompt renders the extraction prompt for text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, Truncate(text, MaxPromptRunes))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// StripCodeFences returns the body of the first ``` block in s, or s itself
// when it has none.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ParseResponse decodes a model reply into an Enhancement.
func ParseResponse(raw string) (estimate.Enhancement, error) {
	body := StripCodeFences(raw)
	if body == "" {
		return estimate.Enhancement{}, ErrEmptyResponse
	}
	var out estimate.Enhancement
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return estimate.Enhancement{}, fmt.Errorf("ai: bad JSON: %w", err)
	}
	return out, nil
}
