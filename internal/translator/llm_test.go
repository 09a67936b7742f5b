package translator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeChat struct {
	reply string
	err   error
	input []*schema.Message
}

func (f *fakeChat) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func TestLLMTranslateBatch(t *testing.T) {
	chat := &fakeChat{reply: "पहला\n" + BatchSeparator + "\nदूसरा\n" + BatchSeparator + "\nतीसरा"}
	l := NewLLMTranslatorWithModel(chat, LLMConfig{SourceLanguage: "en"})

	results, err := l.TranslateBatch(context.Background(), []string{"first", "second", "third"}, "hi")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"पहला", "दूसरा", "तीसरा"}
	for i, r := range results {
		if r.Err != nil || r.Text != want[i] {
			t.Errorf("results[%d] = %+v, want %q", i, r, want[i])
		}
	}

	if len(chat.input) != 2 || chat.input[0].Role != schema.System || chat.input[1].Role != schema.User {
		t.Fatalf("messages = %+v", chat.input)
	}
	if !strings.Contains(chat.input[0].Content, "Hindi") || !strings.Contains(chat.input[0].Content, "English") {
		t.Errorf("system prompt does not name the languages: %s", chat.input[0].Content)
	}
	if strings.Count(chat.input[1].Content, BatchSeparator) != 2 {
		t.Errorf("user prompt = %q", chat.input[1].Content)
	}
}

func TestLLMShortReplyMarksMissingEntries(t *testing.T) {
	chat := &fakeChat{reply: "one\n" + BatchSeparator + "\ntwo"}
	l := NewLLMTranslatorWithModel(chat, LLMConfig{})

	results, err := l.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "kn")
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Text != "one" || results[1].Text != "two" {
		t.Errorf("results = %+v", results)
	}
	if KindOf(results[2].Err) != KindTransient {
		t.Errorf("missing entry err = %v, want transient", results[2].Err)
	}
}

func TestLLMLongReplyMergesExtraParts(t *testing.T) {
	chat := &fakeChat{reply: "one " + BatchSeparator + " two " + BatchSeparator + " three"}
	l := NewLLMTranslatorWithModel(chat, LLMConfig{})

	results, err := l.TranslateBatch(context.Background(), []string{"a", "b"}, "kn")
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Text != "one" || results[1].Text != "two three" {
		t.Errorf("results = %+v", results)
	}
}

func TestLLMErrorClassification(t *testing.T) {
	tests := []struct {
		err  string
		want Kind
	}{
		{"error, status code: 401, message: Incorrect API key provided", KindAuth},
		{"error, status code: 429, message: Rate limit reached", KindRateLimited},
		{"error, status code: 400, message: invalid_request_error", KindFailed},
		{"Post \"https://api.openai.com/v1/chat/completions\": dial tcp: i/o timeout", KindTransient},
	}
	for _, tt := range tests {
		l := NewLLMTranslatorWithModel(&fakeChat{err: errors.New(tt.err)}, LLMConfig{})
		_, err := l.TranslateBatch(context.Background(), []string{"x"}, "ta")
		if KindOf(err) != tt.want {
			t.Errorf("%q classified as %s, want %s", tt.err, KindOf(err), tt.want)
		}
	}
}

func TestLLMEmptyReplyIsTransient(t *testing.T) {
	l := NewLLMTranslatorWithModel(&fakeChat{reply: "  "}, LLMConfig{})
	_, err := l.TranslateBatch(context.Background(), []string{"x"}, "ta")
	if KindOf(err) != KindTransient {
		t.Errorf("err = %v", err)
	}
}

func TestNewLLMTranslatorRequiresKey(t *testing.T) {
	if _, err := NewLLMTranslator(context.Background(), LLMConfig{}); KindOf(err) != KindAuth {
		t.Errorf("err = %v, want auth error", err)
	}
}
