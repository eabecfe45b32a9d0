package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncDocument(t *testing.T) {
	before := testutil.ToFloat64(DocumentsTotal.WithLabelValues(ResultSkipped))
	IncDocument(ResultSkipped)
	assert.Equal(t, before+1, testutil.ToFloat64(DocumentsTotal.WithLabelValues(ResultSkipped)))
}

func TestIncPageUnknownEngine(t *testing.T) {
	before := testutil.ToFloat64(PagesRecognizedTotal.WithLabelValues("unknown", "ok"))
	IncPage("", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(PagesRecognizedTotal.WithLabelValues("unknown", "ok")))
}

func TestIncAIRequest(t *testing.T) {
	before := testutil.ToFloat64(AIRequestsTotal.WithLabelValues("openai", "error"))
	IncAIRequest("openai", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(AIRequestsTotal.WithLabelValues("openai", "error")))
}
