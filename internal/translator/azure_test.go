package translator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newAzureServer(t *testing.T, handler http.HandlerFunc) *AzureTranslator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := NewAzureTranslator(AzureConfig{
		Key:      "test-key",
		Endpoint: server.URL + "/",
		Region:   "centralindia",
		Client:   server.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAzureTranslateBatch(t *testing.T) {
	a := newAzureServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/translate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api-version") != "3.0" || q.Get("to") != "hi" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" ||
			r.Header.Get("Ocp-Apim-Subscription-Region") != "centralindia" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if r.Header.Get("X-ClientTraceId") == "" {
			t.Error("missing trace id")
		}

		var body []map[string]string
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("bad body %s: %v", data, err)
		}
		if len(body) != 2 || body[0]["Text"] != "Hello" || body[1]["Text"] != "World" {
			t.Errorf("body = %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"translations":[{"text":"नमस्ते","to":"hi"}]},
			{"translations":[{"text":"दुनिया","to":"hi"}]}
		]`)
	})

	results, err := a.TranslateBatch(context.Background(), []string{"Hello", "World"}, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Text != "नमस्ते" || results[1].Text != "दुनिया" {
		t.Errorf("results = %+v", results)
	}
}

func TestAzureErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		body       string
		want       Kind
		wantDelay  time.Duration
	}{
		{"unauthorized", 401, "", `{"error":{"code":401000,"message":"bad key"}}`, KindAuth, 0},
		{"forbidden", 403, "", ``, KindAuth, 0},
		{"rate limited", 429, "3", `{"error":{"code":429001,"message":"too many"}}`, KindRateLimited, 3 * time.Second},
		{"server error", 503, "", ``, KindTransient, 0},
		{"request timeout", 408, "", ``, KindTransient, 0},
		{"bad target", 400, "", `{"error":{"code":400036,"message":"The target language is not valid."}}`, KindInvalidLanguage, 0},
		{"bad language", 400, "", `{"error":{"code":400019,"message":"One of the languages is not valid."}}`, KindInvalidLanguage, 0},
		{"other bad request", 400, "", `{"error":{"code":400050,"message":"The input text is too long."}}`, KindFailed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAzureServer(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := a.TranslateBatch(context.Background(), []string{"x"}, "hi")
			e, ok := err.(*Error)
			if !ok {
				t.Fatalf("err = %v (%T), want *Error", err, err)
			}
			if e.Kind != tt.want || e.StatusCode != tt.status {
				t.Errorf("got %s/%d, want %s/%d", e.Kind, e.StatusCode, tt.want, tt.status)
			}
			if e.RetryAfter != tt.wantDelay {
				t.Errorf("RetryAfter = %v, want %v", e.RetryAfter, tt.wantDelay)
			}
		})
	}
}

func TestAzureMismatchedResponseIsTransient(t *testing.T) {
	a := newAzureServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"translations":[{"text":"एक"}]}]`)
	})
	_, err := a.TranslateBatch(context.Background(), []string{"one", "two"}, "hi")
	if KindOf(err) != KindTransient {
		t.Errorf("err = %v", err)
	}
}

func TestAzureNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	a, err := NewAzureTranslator(AzureConfig{Key: "k", Endpoint: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.TranslateBatch(context.Background(), []string{"x"}, "hi")
	if KindOf(err) != KindTransient {
		t.Errorf("err = %v", err)
	}
}

func TestAzureRequiresKey(t *testing.T) {
	if _, err := NewAzureTranslator(AzureConfig{}); KindOf(err) != KindAuth {
		t.Errorf("err = %v, want auth error", err)
	}
}

func TestAzureSourceLanguage(t *testing.T) {
	a, _ := NewAzureTranslator(AzureConfig{Key: "k", SourceLanguage: "en"})
	got := a.requestURL("kn")
	want := DefaultAzureEndpoint + "/translate?api-version=3.0&from=en&to=kn"
	if got != want {
		t.Errorf("requestURL = %s, want %s", got, want)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"-1", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
