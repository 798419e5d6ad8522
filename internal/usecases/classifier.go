package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
	"replygate/internal/metrics"
)

const (
	defaultKnowledgeBase = "A professional business."
	defaultInstructions  = "Be helpful and professional."
	fallbackReply        = "I've received your message and am processing it. 🤖"
	systemPrompt         = "You are a professional AI assistant. Respond in Urdu/English/Roman Urdu as needed. Output ONLY JSON."
)

// BusinessContext steers the tone and content of suggested replies.
type BusinessContext struct {
	Name          string
	KnowledgeBase string
	Instructions  string
}

func ContextFromBusiness(b *entities.Business) BusinessContext {
	if b == nil {
		return BusinessContext{}
	}
	return BusinessContext{Name: b.Name, KnowledgeBase: b.KnowledgeBase, Instructions: b.AIInstructions}
}

// Classifier labels an inbound message. Implementations never fail.
type Classifier interface {
	Classify(ctx context.Context, text string, bc BusinessContext, history []entities.Message) entities.AnalysisResult
}

// IntentClassifier asks a completion provider for an intent. With no
// provider it falls back to keyword matching.
type IntentClassifier struct {
	provider     interfaces.CompletionProvider
	historyLimit int
	log          zerolog.Logger
}

// NewIntentClassifier accepts a nil provider for mock mode.
func NewIntentClassifier(provider interfaces.CompletionProvider, log zerolog.Logger) *IntentClassifier {
	return &IntentClassifier{
		provider:     provider,
		historyLimit: 5,
		log:          log.With().Str("component", "classifier").Logger(),
	}
}

func (c *IntentClassifier) Classify(ctx context.Context, text string, bc BusinessContext, history []entities.Message) entities.AnalysisResult {
	if c.provider == nil {
		c.log.Debug().Msg("no AI provider configured, using mock classifier")
		metrics.Classifications.WithLabelValues("mock", "ok").Inc()
		return MockAnalysis(text, bc)
	}

	name := c.provider.Name()
	raw, err := c.provider.Complete(ctx, []interfaces.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: c.buildPrompt(text, bc, history)},
	})
	if err != nil {
		c.log.Error().Err(err).Str("provider", name).Msg("AI provider call failed")
		metrics.Classifications.WithLabelValues(name, "provider_error").Inc()
		return FallbackAnalysis()
	}

	result, err := ParseAnalysis(raw)
	if err != nil {
		c.log.Error().Err(err).Str("provider", name).Str("raw", truncate(raw, 80)).Msg("AI output not parseable")
		metrics.Classifications.WithLabelValues(name, "parse_error").Inc()
		return FallbackAnalysis()
	}

	c.log.Info().Str("intent", result.Intent).Float64("confidence", result.Confidence).Msg("message classified")
	metrics.Classifications.WithLabelValues(name, "ok").Inc()
	return result
}

func (c *IntentClassifier) buildPrompt(text string, bc BusinessContext, history []entities.Message) string {
	name := bc.Name
	if name == "" {
		name = "this business"
	}
	kb := bc.KnowledgeBase
	if kb == "" {
		kb = defaultKnowledgeBase
	}
	instructions := bc.Instructions
	if instructions == "" {
		instructions = defaultInstructions
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an AI employee for %q.\n\n", name)
	fmt.Fprintf(&sb, "KNOWLEDGE BASE:\n%s\n\n", kb)
	fmt.Fprintf(&sb, "BEHAVIOR INSTRUCTIONS:\n%s\n\n", instructions)

	if len(history) > 0 {
		sb.WriteString("RECENT CONVERSATION (oldest first):\n")
		n := min(len(history), c.historyLimit)
		// history arrives newest first
		for i := n - 1; i >= 0; i-- {
			fmt.Fprintf(&sb, "- %s: %s\n", history[i].Role, history[i].Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Analyze this customer message: %q\n\n", text)
	fmt.Fprintf(&sb, "AVAILABLE INTENTS:\n- %s\n\n", strings.Join(entities.IntentVocabulary, ", "))
	sb.WriteString(`Return ONLY a JSON object:
{
  "intent": "string",
  "confidence": number,
  "suggested_reply": "your response here",
  "entities": {}
}`)
	return sb.String()
}

// MockAnalysis is the keyword classifier used without an AI provider.
func MockAnalysis(text string, bc BusinessContext) entities.AnalysisResult {
	lower := strings.ToLower(text)
	intent := entities.IntentGeneralInquiry
	reply := "Hello! How can I assist you today?"

	switch {
	case strings.Contains(lower, "meeting") || strings.Contains(lower, "schedule"):
		intent = entities.IntentScheduleMeeting
		reply = "I can help you schedule a visit. When works for you?"
	case strings.Contains(lower, "price") || strings.Contains(lower, "apart") || strings.Contains(lower, "karti"):
		intent = entities.IntentGetPricing
		if bc.KnowledgeBase != "" {
			reply = "Details: " + truncate(bc.KnowledgeBase, 150) + "..."
		} else {
			reply = "What details would you like to know about our services?"
		}
	}

	return entities.AnalysisResult{
		Intent:         intent,
		Confidence:     0.9,
		SuggestedReply: reply,
		Entities:       map[string]any{},
	}
}

// FallbackAnalysis is returned whenever the provider path fails.
func FallbackAnalysis() entities.AnalysisResult {
	return entities.AnalysisResult{
		Intent:         entities.IntentUnknown,
		Confidence:     0,
		SuggestedReply: fallbackReply,
		Entities:       map[string]any{},
	}
}

type rawAnalysis struct {
	Intent         string          `json:"intent"`
	Confidence     json.RawMessage `json:"confidence"`
	SuggestedReply string          `json:"suggested_reply"`
	Entities       map[string]any  `json:"entities"`
}

// ParseAnalysis extracts and decodes the provider's JSON answer.
func ParseAnalysis(raw string) (entities.AnalysisResult, error) {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return entities.AnalysisResult{}, err
	}

	var ra rawAnalysis
	if err := json.Unmarshal([]byte(obj), &ra); err != nil {
		return entities.AnalysisResult{}, fmt.Errorf("decode analysis: %w", err)
	}

	conf, err := parseConfidence(ra.Confidence)
	if err != nil {
		return entities.AnalysisResult{}, err
	}

	result := entities.AnalysisResult{
		Intent:         strings.TrimSpace(ra.Intent),
		Confidence:     clamp01(conf),
		SuggestedReply: ra.SuggestedReply,
		Entities:       ra.Entities,
	}
	if result.Intent == "" {
		result.Intent = entities.IntentUnknown
	}
	if result.Entities == nil {
		result.Entities = map[string]any{}
	}
	return result, nil
}

// parseConfidence accepts a number or a quoted number; missing is 0.
func parseConfidence(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("decode confidence: %w", err)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("decode confidence %q: %w", s, err)
	}
	return f, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
