package pipeline

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pdf-translation/internal/logger"
)

// StepTiming is the wall time of one pipeline step.
type StepTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// RunReport summarizes one run. It is returned for failed runs too, with
// whatever was measured before the abort.
type RunReport struct {
	BlocksTranslated int           `json:"blocks_translated"`
	OriginalChars    int           `json:"original_char_count"`
	OriginalWords    int           `json:"original_word_count"`
	TranslatedChars  int           `json:"translated_char_count"`
	TranslatedWords  int           `json:"translated_word_count"`
	APILatency       time.Duration `json:"api_latency"`
	StepTimings      []StepTiming  `json:"per_step_timings"`
	TotalPipeline    time.Duration `json:"total_pipeline"`

	RunID          string `json:"run_id"`
	TargetLanguage string `json:"target_language"`
	Pages          int    `json:"pages"`
	FallbackBlocks int    `json:"fallback_blocks"`
	OverflowBlocks int    `json:"overflow_blocks"`
	CachedBlocks   int    `json:"cached_blocks"`
	FinalStage     Stage  `json:"final_stage"`
	AbortReason    string `json:"abort_reason,omitempty"`
}

// Succeeded reports whether the output was saved.
func (r *RunReport) Succeeded() bool { return r.FinalStage == StageSaved }

// Step returns the recorded duration of the named step.
func (r *RunReport) Step(name string) (time.Duration, bool) {
	for _, s := range r.StepTimings {
		if s.Name == name {
			return s.Duration, true
		}
	}
	return 0, false
}

// StepTotal returns the sum of all step timings.
func (r *RunReport) StepTotal() time.Duration {
	var total time.Duration
	for _, s := range r.StepTimings {
		total += s.Duration
	}
	return total
}

func (r *RunReport) addStep(name string, d time.Duration) {
	r.StepTimings = append(r.StepTimings, StepTiming{Name: name, Duration: d})
}

func (r *RunReport) addOriginal(text string) {
	r.OriginalChars += utf8.RuneCountInString(text)
	r.OriginalWords += len(strings.Fields(text))
}

func (r *RunReport) addTranslated(text string) {
	r.TranslatedChars += utf8.RuneCountInString(text)
	r.TranslatedWords += len(strings.Fields(text))
}

const reportWidth = 60

// Format renders the report as bordered text.
func (r *RunReport) Format() string {
	var b strings.Builder
	title := " Translation Report "
	side := (reportWidth - len(title)) / 2
	b.WriteString(strings.Repeat("=", side) + title + strings.Repeat("=", reportWidth-side-len(title)) + "\n")

	line := func(label, value string) {
		fmt.Fprintf(&b, "%-30s: %s\n", label, value)
	}
	line("Total blocks translated", fmt.Sprintf("%d", r.BlocksTranslated))
	line("Original text", fmt.Sprintf("%d chars, %d words", r.OriginalChars, r.OriginalWords))
	line("Translated text", fmt.Sprintf("%d chars, %d words", r.TranslatedChars, r.TranslatedWords))
	line("Total translation API latency", seconds(r.APILatency))
	line("Step timings", "")
	for _, s := range r.StepTimings {
		fmt.Fprintf(&b, "    %-26s: %s\n", s.Name, seconds(s.Duration))
	}
	line("Total pipeline time", seconds(r.TotalPipeline))
	if r.FinalStage == StageAborted {
		line("Aborted", r.AbortReason)
	}
	b.WriteString(strings.Repeat("=", reportWidth) + "\n")
	return b.String()
}

// LogFields returns the report as structured log fields.
func (r *RunReport) LogFields() []logger.Field {
	timings := make(map[string]float64, len(r.StepTimings))
	for _, s := range r.StepTimings {
		timings[s.Name] = s.Duration.Seconds()
	}
	fields := []logger.Field{
		logger.String("run_id", r.RunID),
		logger.String("target_language", r.TargetLanguage),
		logger.Int("pages", r.Pages),
		logger.Int("blocks_translated", r.BlocksTranslated),
		logger.Int("original_char_count", r.OriginalChars),
		logger.Int("original_word_count", r.OriginalWords),
		logger.Int("translated_char_count", r.TranslatedChars),
		logger.Int("translated_word_count", r.TranslatedWords),
		logger.Float64("api_latency_seconds", r.APILatency.Seconds()),
		logger.Any("per_step_timings", timings),
		logger.Float64("total_pipeline_seconds", r.TotalPipeline.Seconds()),
		logger.Int("fallback_blocks", r.FallbackBlocks),
		logger.Int("overflow_blocks", r.OverflowBlocks),
		logger.Int("cached_blocks", r.CachedBlocks),
		logger.String("final_stage", r.FinalStage.String()),
	}
	if r.AbortReason != "" {
		fields = append(fields, logger.String("abort_reason", r.AbortReason))
	}
	return fields
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2f s", d.Seconds())
}
