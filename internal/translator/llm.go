package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"pdf-translation/internal/logger"
)

// BatchSeparator delimits texts of a batch in the chat prompt and reply.
const BatchSeparator = "---BLOCK_SEPARATOR---"

const (
	// DefaultLLMModel is the default chat model
	DefaultLLMModel = "gpt-4o-mini"
	// DefaultLLMTimeout is the HTTP timeout of the chat client
	DefaultLLMTimeout = 120 * time.Second
)

// ChatGenerator is the part of an eino chat model the LLM provider uses.
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// LLMConfig configures an LLMTranslator.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	SourceLanguage string
}

// LLMTranslator translates through an OpenAI-compatible chat model.
type LLMTranslator struct {
	chat  ChatGenerator
	model string
	from  string
}

// NewLLMTranslator creates an eino OpenAI chat model from cfg.
func NewLLMTranslator(ctx context.Context, cfg LLMConfig) (*LLMTranslator, error) {
	if cfg.APIKey == "" {
		return nil, NewError(KindAuth, "OpenAI API key is not set", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLLMTimeout
	}
	temperature := float32(cfg.Temperature)

	chatModelConfig := &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: &temperature,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewLLMTranslatorWithModel(chatModel, cfg), nil
}

// NewLLMTranslatorWithModel uses an existing chat model.
func NewLLMTranslatorWithModel(chat ChatGenerator, cfg LLMConfig) *LLMTranslator {
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	return &LLMTranslator{chat: chat, model: cfg.Model, from: cfg.SourceLanguage}
}

// TranslateBatch implements Gateway. The texts are sent as one message
// joined by BatchSeparator. When the reply has fewer parts than texts, the
// trailing texts get transient per-entry errors so they are resubmitted.
func (l *LLMTranslator) TranslateBatch(ctx context.Context, texts []string, lang string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if _, err := ValidateLanguage(lang); err != nil {
		return nil, err
	}

	logger.Debug("calling chat model",
		logger.String("model", l.model),
		logger.String("lang", lang),
		logger.Int("texts", len(texts)))

	reply, err := l.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(l.buildSystemPrompt(lang)),
		schema.UserMessage(l.buildUserPrompt(texts)),
	})
	if err != nil {
		return nil, classifyLLMError(err)
	}
	if reply == nil || strings.TrimSpace(reply.Content) == "" {
		return nil, NewError(KindTransient, "chat model returned an empty reply", nil)
	}

	parts := splitReply(reply.Content, len(texts))
	results := make([]Result, len(texts))
	for i := range texts {
		if i < len(parts) {
			results[i] = Result{Text: parts[i]}
		} else {
			results[i] = Result{Err: NewError(KindTransient, "reply is missing this block", nil)}
		}
	}
	return results, nil
}

func (l *LLMTranslator) buildSystemPrompt(lang string) string {
	from := "the source language"
	if l.from != "" {
		from = LanguageName(l.from)
	}
	return fmt.Sprintf(`You are a professional translator of printed documents.
Translate text extracted from a PDF from %s into %s (%s).

RULES:
1. Output only the translation, without notes or explanations.
2. Keep numbers, formulas, URLs and symbols unchanged.
3. The input may contain several blocks separated by a line "%s".
4. Translate each block on its own and keep every separator line in your output.
5. Never merge, drop or reorder blocks.`, from, LanguageName(lang), lang, BatchSeparator)
}

func (l *LLMTranslator) buildUserPrompt(texts []string) string {
	return strings.Join(texts, "\n"+BatchSeparator+"\n")
}

// splitReply cuts the reply at separator lines. Extra parts are merged into
// the last expected one.
func splitReply(content string, expected int) []string {
	raw := strings.Split(content, BatchSeparator)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		parts = append(parts, strings.TrimSpace(p))
	}
	if len(parts) > expected {
		last := strings.Join(parts[expected-1:], " ")
		parts = append(parts[:expected-1], last)
	}
	return parts
}

// classifyLLMError maps a chat client error by its message; the eino client
// reports HTTP failures as text.
func classifyLLMError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "unauthorized"):
		return &Error{Kind: KindAuth, Message: "chat model rejected the credentials", Cause: err}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &Error{Kind: KindRateLimited, StatusCode: 429, Message: "chat model rate limit exceeded", Cause: err}
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid_request"):
		return &Error{Kind: KindFailed, StatusCode: 400, Message: "chat model rejected the request", Cause: err}
	default:
		return &Error{Kind: KindTransient, Message: "chat model call failed", Cause: err}
	}
}
