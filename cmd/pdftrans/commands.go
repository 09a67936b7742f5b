package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pdf-translation/internal/logger"
	"pdf-translation/internal/pdf"
	"pdf-translation/internal/pipeline"
	"pdf-translation/internal/results"
	"pdf-translation/internal/translator"
)

func runTranslate(cmd *cobra.Command, args []string) error {
	input := args[0]
	if outputPath != "" && len(languages) > 1 {
		return fmt.Errorf("--output needs exactly one --lang, got %d", len(languages))
	}

	ctx, stop := signalContext()
	defer stop()

	gw, release, err := newGateway(ctx)
	if err != nil {
		return err
	}
	defer release()
	history := openHistory()

	for _, lang := range languages {
		out := outputPath
		if out == "" {
			out = filepath.Join(filepath.Dir(input), pipeline.OutputFileName(input, lang))
		}
		report, err := translateOne(ctx, gw, input, out, lang)
		recordRun(history, input, out, report)
		fmt.Print(report.Format())
		if err != nil {
			return err
		}
		fmt.Printf("Saved %s\n", out)
	}
	return nil
}

// translateOne runs one input through the pipeline, with a progress bar
// unless disabled.
func translateOne(ctx context.Context, gw translator.Gateway, input, output, lang string) (*pipeline.RunReport, error) {
	if noProgress {
		return pipeline.New(gw, pipelineOptions(lang, nil)).Run(ctx, input, output)
	}
	bar := newRunProgress(fmt.Sprintf("%s -> %s", filepath.Base(input), lang))
	report, err := pipeline.New(gw, pipelineOptions(lang, bar.update)).Run(ctx, input, output)
	bar.finish()
	return report, err
}

func runBatch(cmd *cobra.Command, args []string) error {
	inDir, outDir := args[0], args[1]

	inputs, err := listPDFs(inDir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no PDF files in %s", inDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	gw, release, err := newGateway(ctx)
	if err != nil {
		return err
	}
	defer release()
	history := openHistory()

	var failed []string
	done, skipped := 0, 0
	for _, lang := range languages {
		for _, input := range inputs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out := filepath.Join(outDir, pipeline.OutputFileName(input, lang))
			if !force && alreadyTranslated(history, input, out, lang) {
				skipped++
				continue
			}

			report, err := translateOne(ctx, gw, input, out, lang)
			recordRun(history, input, out, report)
			if err != nil {
				logger.Error("file failed", err, logger.String("input", input), logger.String("lang", lang))
				failed = append(failed, fmt.Sprintf("%s [%s]: %v", filepath.Base(input), lang, err))
				continue
			}
			done++
			fmt.Printf("%s [%s]: %d blocks, %.1f s -> %s\n",
				filepath.Base(input), lang, report.BlocksTranslated, report.TotalPipeline.Seconds(), out)
		}
	}

	fmt.Printf("\n%d translated, %d skipped, %d failed\n", done, skipped, len(failed))
	if len(failed) > 0 {
		return errors.New("failed:\n  " + strings.Join(failed, "\n  "))
	}
	return nil
}

// alreadyTranslated reports whether input needs no new run: the history
// holds a complete translation whose output still exists, or, without a
// history, out exists.
func alreadyTranslated(history *results.Manager, input, out, lang string) bool {
	if history != nil {
		info, err := history.CheckExisting(input, lang)
		if err != nil {
			logger.Warn("history lookup failed", logger.String("input", input), logger.Err(err))
		} else {
			if info.IsComplete {
				logger.Info("already translated, skipping",
					logger.String("input", input), logger.String("detail", info.Message))
			}
			return info.IsComplete
		}
	}
	if _, err := os.Stat(out); err == nil {
		logger.Info("output exists, skipping", logger.String("output", out))
		return true
	}
	return false
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func runFonts(cmd *cobra.Command, args []string) error {
	r := fontResolver()
	for _, e := range r.Entries() {
		status := "ok"
		if err := r.Check(e.Font); err != nil {
			status = "missing"
			var pe *pdf.PDFError
			if errors.As(err, &pe) && pe.Cause != nil && !os.IsNotExist(pe.Cause) {
				status = "unreadable"
			}
		}
		fmt.Printf("%-8s %-6s %-10s %s\n", e.Language, e.Font.Script, status, e.Font.Path)
	}
	if def := cfg.DefaultFontPath(); def != "" {
		fmt.Printf("%-8s %-6s %-10s %s\n", "default", "", "", def)
	}
	return r.Validate()
}

func runHistory(cmd *cobra.Command, args []string) error {
	h := openHistory()
	if h == nil {
		return errors.New("run history is disabled (history.enabled = false)")
	}

	list := h.List
	if failedOnly {
		list = h.Incomplete
	}
	recs, err := list()
	if err != nil {
		return err
	}
	for _, r := range recs {
		blocks := 0
		if r.Report != nil {
			blocks = r.Report.BlocksTranslated
		}
		fmt.Printf("%s  %-8s  %-4s  %5d blocks  %s\n",
			r.TranslatedAt.Format("2006-01-02 15:04"), r.Status, r.TargetLanguage, blocks, r.SourceFileName)
		if r.ErrorMessage != "" {
			fmt.Printf("    %s\n", r.ErrorMessage)
		}
	}
	fmt.Printf("%d runs in %s\n", len(recs), h.BaseDir())
	return nil
}

// runProgress drives a progress bar from pipeline events: one tick per
// page for each of extraction, translation and reconstruction.
type runProgress struct {
	title string
	out   io.Writer
	bar   *progressbar.ProgressBar
}

func newRunProgress(title string) *runProgress {
	return &runProgress{title: title, out: os.Stderr}
}

func (r *runProgress) update(e pipeline.Event) {
	if r.bar == nil {
		if e.Pages == 0 {
			return
		}
		r.bar = progressbar.NewOptions(e.Pages*3,
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", r.title)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	if e.Page == 0 {
		r.bar.Describe(fmt.Sprintf("[cyan]%s[reset] %s", r.title, e.Stage))
		return
	}
	switch e.Stage {
	case pipeline.StageExtracted, pipeline.StageTranslated, pipeline.StageReconstructed:
		r.bar.Add(1)
	}
}

func (r *runProgress) finish() {
	if r.bar != nil {
		r.bar.Finish()
		fmt.Fprintln(r.out)
	}
}
