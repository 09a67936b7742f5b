package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdf-translation/internal/logger"
)

const (
	// DefaultAzureEndpoint is the global Microsoft Translator endpoint
	DefaultAzureEndpoint = "https://api.cognitive.microsofttranslator.com"
	// DefaultAzureTimeout is the HTTP client timeout
	DefaultAzureTimeout = 60 * time.Second
)

// Azure error codes meaning the language pair is not supported.
var azureLanguageCodes = map[int]bool{
	400019: true, // one of the languages is not valid
	400023: true, // source language is not valid
	400035: true, // source language is not valid
	400036: true, // target language is not valid
}

// AzureConfig configures an AzureTranslator.
type AzureConfig struct {
	Key            string
	Endpoint       string
	Region         string
	SourceLanguage string
	Client         *http.Client
}

// AzureTranslator calls the Microsoft Translator v3 REST API.
type AzureTranslator struct {
	key      string
	endpoint string
	region   string
	from     string
	client   *http.Client
}

// NewAzureTranslator creates the provider. The key is required.
func NewAzureTranslator(cfg AzureConfig) (*AzureTranslator, error) {
	if cfg.Key == "" {
		return nil, NewError(KindAuth, "azure translator key is not set", nil)
	}
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultAzureEndpoint
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultAzureTimeout}
	}
	return &AzureTranslator{
		key:      cfg.Key,
		endpoint: endpoint,
		region:   cfg.Region,
		from:     cfg.SourceLanguage,
		client:   client,
	}, nil
}

type azureText struct {
	Text string `json:"Text"`
}

type azureResponse struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

type azureErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// TranslateBatch implements Gateway.
func (a *AzureTranslator) TranslateBatch(ctx context.Context, texts []string, lang string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if _, err := ValidateLanguage(lang); err != nil {
		return nil, err
	}

	payload := make([]azureText, len(texts))
	for i, t := range texts {
		payload[i] = azureText{Text: t}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(KindFailed, "failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.requestURL(lang), bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindFailed, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)
	if a.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", a.region)
	}
	req.Header.Set("X-ClientTraceId", uuid.NewString())

	logger.Debug("calling Azure Translator",
		logger.String("lang", lang),
		logger.Int("texts", len(texts)),
		logger.Int("bytes", len(body)))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, NewError(KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindTransient, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleAzureHTTPError(resp, data)
	}

	var parsed []azureResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewError(KindTransient, "failed to parse response", err)
	}
	if len(parsed) != len(texts) {
		return nil, NewError(KindTransient,
			fmt.Sprintf("response has %d entries for %d texts", len(parsed), len(texts)), nil)
	}

	results := make([]Result, len(texts))
	for i, p := range parsed {
		if len(p.Translations) == 0 {
			results[i] = Result{Err: NewError(KindTransient, "no translation in response entry", nil)}
			continue
		}
		results[i] = Result{Text: p.Translations[0].Text}
	}
	return results, nil
}

func (a *AzureTranslator) requestURL(lang string) string {
	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("to", lang)
	if a.from != "" {
		q.Set("from", a.from)
	}
	return a.endpoint + "/translate?" + q.Encode()
}

// handleAzureHTTPError classifies a non-200 response.
func handleAzureHTTPError(resp *http.Response, body []byte) error {
	var errBody azureErrorBody
	message := http.StatusText(resp.StatusCode)
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error.Message != "" {
		message = errBody.Error.Message
	}

	e := &Error{StatusCode: resp.StatusCode, Message: message}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Kind = KindAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		e.Kind = KindTransient
	case azureLanguageCodes[errBody.Error.Code]:
		e.Kind = KindInvalidLanguage
	default:
		e.Kind = KindFailed
	}
	if errBody.Error.Code != 0 {
		e.Cause = errors.New("azure error code " + strconv.Itoa(errBody.Error.Code))
	}
	return e
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
