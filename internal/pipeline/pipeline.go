// Package pipeline runs a layout-preserving translation of one PDF:
// open, resolve the font, extract blocks, translate, fit, reconstruct and
// save, producing a RunReport.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-translation/internal/logger"
	"pdf-translation/internal/pdf"
	"pdf-translation/internal/translator"
)

// Step names recorded in RunReport.StepTimings.
const (
	StepOpen        = "open"
	StepFont        = "resolve_font"
	StepExtract     = "extract"
	StepTranslate   = "translate"
	StepFit         = "fit"
	StepReconstruct = "reconstruct"
	StepSave        = "save"
)

// DefaultPageConcurrency is the number of pages translated at once.
const DefaultPageConcurrency = 3

// Document is an opened source PDF.
type Document interface {
	PageCount() int
	Page(n int) pdf.PageInfo
	ExtractBlocks(n int) ([]pdf.TextBlock, error)
	Close() error
}

// Renderer writes the output PDF one page at a time.
type Renderer interface {
	RenderPage(page pdf.PageInfo, blocks []pdf.TextBlock, plans []pdf.FitPlan) error
	Save(outputPath string) error
	Discard()
}

// Event reports progress. Page is 0 for stage-level events. Every page
// gets one event for each of extraction, translation and reconstruction,
// including pages without blocks.
type Event struct {
	Stage Stage
	Page  int
	Pages int
}

// ProgressFunc receives progress events. It may be called from several
// goroutines during translation.
type ProgressFunc func(Event)

// Options configures a Pipeline.
type Options struct {
	TargetLanguage string
	// FontPath forces a font file and bypasses Fonts.
	FontPath string
	// Fonts resolves the font when FontPath is empty.
	Fonts           *pdf.FontResolver
	Batch           translator.BatchConfig
	PageConcurrency int
	MinFontSize     float64
	FontStep        float64
	LineSpacing     float64
	Extract         pdf.ExtractOptions
	Progress        ProgressFunc
}

// Pipeline translates PDFs through a Gateway. A Pipeline holds no state
// between runs and may be reused.
type Pipeline struct {
	gateway translator.Gateway
	opts    Options

	openDocument func(path string, extractor *pdf.BlockExtractor) (Document, error)
	newRenderer  func(src string, font pdf.FontResource) (Renderer, error)
	newMeasurer  func(font pdf.FontResource) (pdf.TextMeasurer, error)
}

// New creates a Pipeline.
func New(gateway translator.Gateway, opts Options) *Pipeline {
	if opts.PageConcurrency <= 0 {
		opts.PageConcurrency = DefaultPageConcurrency
	}
	return &Pipeline{
		gateway: gateway,
		opts:    opts,
		openDocument: func(path string, extractor *pdf.BlockExtractor) (Document, error) {
			doc, err := pdf.OpenDocument(path, extractor)
			if err != nil {
				return nil, err
			}
			return doc, nil
		},
		newRenderer: func(src string, font pdf.FontResource) (Renderer, error) {
			rec, err := pdf.NewReconstructor(src, font)
			if err != nil {
				return nil, err
			}
			return rec, nil
		},
		newMeasurer: func(font pdf.FontResource) (pdf.TextMeasurer, error) {
			m, err := pdf.NewGoPDFMeasurer(font)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

// TranslatePDF translates inputPath into targetLanguage with the font at
// fontPath and writes outputPath only on success.
func TranslatePDF(ctx context.Context, inputPath, outputPath string, gateway translator.Gateway, targetLanguage, fontPath string) (*RunReport, error) {
	return New(gateway, Options{TargetLanguage: targetLanguage, FontPath: fontPath}).Run(ctx, inputPath, outputPath)
}

// pageWork carries one page through the per-page stages.
type pageWork struct {
	info       pdf.PageInfo
	blocks     []pdf.TextBlock
	translated []string
	fallback   int
	plans      []pdf.FitPlan
}

// run is the state of one Run call.
type run struct {
	p      *Pipeline
	report *RunReport
	lang   string
	doc    Document
	font   pdf.FontResource
	meas   pdf.TextMeasurer
	pages  []*pageWork
	batch  *translator.BatchTranslator
}

// Run translates inputPath into outputPath. The returned report is never
// nil. Failures are *AbortError values naming the stage that failed; no
// output file exists after a failed or cancelled run.
func (p *Pipeline) Run(ctx context.Context, inputPath, outputPath string) (*RunReport, error) {
	start := time.Now()
	r := &run{
		p:    p,
		lang: strings.TrimSpace(p.opts.TargetLanguage),
		report: &RunReport{
			RunID:          uuid.NewString(),
			TargetLanguage: strings.TrimSpace(p.opts.TargetLanguage),
		},
	}

	logger.Info("translation started",
		logger.String("run_id", r.report.RunID),
		logger.String("input", inputPath),
		logger.String("output", outputPath),
		logger.String("lang", r.lang))

	err := r.execute(ctx, inputPath, outputPath)
	if r.doc != nil {
		if cerr := r.doc.Close(); cerr != nil {
			logger.Warn("failed to close document", logger.Err(cerr))
		}
	}
	r.report.TotalPipeline = time.Since(start)

	if err != nil {
		r.report.FinalStage = StageAborted
		r.report.AbortReason = err.Error()
		logger.Error("translation aborted", err, r.report.LogFields()...)
		return r.report, err
	}

	r.report.FinalStage = StageSaved
	logger.Info("translation finished", r.report.LogFields()...)
	return r.report, nil
}

func (r *run) execute(ctx context.Context, inputPath, outputPath string) error {
	var renderer Renderer
	defer func() {
		if renderer != nil {
			renderer.Discard()
		}
	}()

	steps := []struct {
		name  string
		stage Stage
		fn    func(context.Context) error
	}{
		{StepOpen, StageOpened, func(context.Context) error { return r.open(inputPath, outputPath) }},
		{StepFont, StageFontResolved, r.resolveFont},
		{StepExtract, StageExtracted, r.extract},
		{StepTranslate, StageTranslated, r.translate},
		{StepFit, StageFitted, r.fit},
		{StepReconstruct, StageReconstructed, func(ctx context.Context) error {
			var err error
			renderer, err = r.reconstruct(ctx, inputPath)
			return err
		}},
		{StepSave, StageSaved, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return renderer.Save(outputPath)
		}},
	}

	for _, s := range steps {
		begin := time.Now()
		err := s.fn(ctx)
		r.report.addStep(s.name, time.Since(begin))
		if err != nil {
			return &AbortError{Stage: s.stage, Err: err}
		}
		r.progress(Event{Stage: s.stage, Pages: len(r.pages)})
	}
	return nil
}

func (r *run) progress(e Event) {
	if r.p.opts.Progress != nil {
		r.p.opts.Progress(e)
	}
}

func (r *run) open(inputPath, outputPath string) error {
	if outputPath == "" {
		return pdf.NewPDFError(pdf.ErrInput, "output path is empty", nil)
	}
	if sameFile(inputPath, outputPath) {
		return pdf.NewPDFErrorWithDetails(pdf.ErrInput, "output would overwrite the input", outputPath, nil)
	}

	doc, err := r.p.openDocument(inputPath, pdf.NewBlockExtractor(r.p.opts.Extract))
	if err != nil {
		return err
	}
	r.doc = doc
	r.report.Pages = doc.PageCount()
	r.pages = make([]*pageWork, doc.PageCount())
	for i := range r.pages {
		r.pages[i] = &pageWork{info: doc.Page(i + 1)}
	}
	return nil
}

func (r *run) resolveFont(ctx context.Context) error {
	if _, err := translator.ValidateLanguage(r.lang); err != nil {
		return err
	}

	if r.p.opts.FontPath != "" {
		if _, err := os.Stat(r.p.opts.FontPath); err != nil {
			return pdf.NewPDFErrorWithDetails(pdf.ErrFontUnavailable, "font file not accessible", r.p.opts.FontPath, err)
		}
		script, _ := pdf.LanguageScript(r.lang)
		r.font = pdf.NewFontResource(r.p.opts.FontPath, script)
	} else {
		if r.p.opts.Fonts == nil {
			return pdf.NewPDFError(pdf.ErrFontUnavailable, "no font path and no font table configured", nil)
		}
		font, err := r.p.opts.Fonts.Resolve(r.lang)
		if err != nil {
			return err
		}
		r.font = font
	}

	m, err := r.p.newMeasurer(r.font)
	if err != nil {
		return err
	}
	r.meas = m

	logger.Info("font resolved",
		logger.String("family", r.font.Family),
		logger.String("script", r.font.Script),
		logger.String("path", r.font.Path))
	return nil
}

func (r *run) extract(ctx context.Context) error {
	for _, pw := range r.pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		blocks, err := r.doc.ExtractBlocks(pw.info.Number)
		if err != nil {
			// the page is copied through untranslated
			logger.Warn("skipping text of unreadable page",
				logger.Int("page", pw.info.Number), logger.Err(err))
			blocks = nil
		}
		pw.blocks = blocks
		for _, b := range blocks {
			r.report.addOriginal(b.Text)
		}
		r.progress(Event{Stage: StageExtracted, Page: pw.info.Number, Pages: len(r.pages)})
	}
	return nil
}

// translate runs pages concurrently; each page's batches run in order.
// The first fatal error cancels the remaining pages.
func (r *run) translate(ctx context.Context) error {
	r.batch = translator.NewBatchTranslator(r.p.gateway, r.p.opts.Batch)
	hitsBefore := cacheHits(r.p.gateway)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, r.p.opts.PageConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, pw := range r.pages {
		if len(pw.blocks) == 0 {
			r.progress(Event{Stage: StageTranslated, Page: pw.info.Number, Pages: len(r.pages)})
			continue
		}
		wg.Add(1)
		go func(pw *pageWork) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			err := r.translatePage(ctx, pw)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			r.progress(Event{Stage: StageTranslated, Page: pw.info.Number, Pages: len(r.pages)})
		}(pw)
	}
	wg.Wait()

	stats := r.batch.Stats()
	r.report.APILatency = stats.Latency
	r.report.CachedBlocks = cacheHits(r.p.gateway) - hitsBefore

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, pw := range r.pages {
		r.report.BlocksTranslated += len(pw.blocks)
		r.report.FallbackBlocks += pw.fallback
		for _, t := range pw.translated {
			r.report.addTranslated(t)
		}
	}
	logger.Info("translation step finished",
		logger.Int("blocks", r.report.BlocksTranslated),
		logger.Int("calls", stats.Calls),
		logger.Int("retries", stats.Retries),
		logger.Int("fallback", r.report.FallbackBlocks))
	return nil
}

// translatePage fills pw.translated in block order. Formula blocks keep
// their source text.
func (r *run) translatePage(ctx context.Context, pw *pageWork) error {
	pw.translated = make([]string, len(pw.blocks))
	var texts []string
	var idx []int
	for i, b := range pw.blocks {
		if b.BlockType == pdf.BlockFormula {
			pw.translated[i] = b.Text
			logger.Debug("formula block kept as is",
				logger.String("block", b.ID),
				logger.String("text", b.Text))
			continue
		}
		texts = append(texts, b.Text)
		idx = append(idx, i)
	}
	if len(texts) == 0 {
		return nil
	}

	outcomes, err := r.batch.Translate(ctx, texts, r.lang)
	if err != nil {
		return err
	}
	for j, o := range outcomes {
		pw.translated[idx[j]] = o.Text
		if o.Fallback {
			pw.fallback++
			logger.Warn("block kept in source language",
				logger.String("block", pw.blocks[idx[j]].ID),
				logger.Err(o.Err))
		}
	}
	return nil
}

func (r *run) fit(ctx context.Context) error {
	fitter := pdf.NewFitter(r.p.opts.MinFontSize, r.p.opts.FontStep, r.p.opts.LineSpacing)
	for _, pw := range r.pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		pw.plans = make([]pdf.FitPlan, len(pw.blocks))
		for i, b := range pw.blocks {
			plan := fitter.Fit(b, pw.translated[i], r.meas)
			if plan.Overflow {
				r.report.OverflowBlocks++
				logger.Warn("translated text overflows its box",
					logger.String("block", b.ID),
					logger.String("code", string(pdf.ErrLayoutOverflow)),
					logger.Float64("font_size", plan.FontSize))
			}
			pw.plans[i] = plan
		}
	}
	return nil
}

// reconstruct renders every page in document order, checking for
// cancellation before each page.
func (r *run) reconstruct(ctx context.Context, src string) (Renderer, error) {
	renderer, err := r.p.newRenderer(src, r.font)
	if err != nil {
		return nil, err
	}
	for _, pw := range r.pages {
		if err := ctx.Err(); err != nil {
			return renderer, err
		}
		if err := renderer.RenderPage(pw.info, pw.blocks, pw.plans); err != nil {
			return renderer, err
		}
		r.progress(Event{Stage: StageReconstructed, Page: pw.info.Number, Pages: len(r.pages)})
	}
	return renderer, nil
}

func cacheHits(g translator.Gateway) int {
	if c, ok := g.(interface{ Hits() int }); ok {
		return c.Hits()
	}
	return 0
}

func sameFile(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	if aa == bb {
		return true
	}
	ia, err1 := os.Stat(aa)
	ib, err2 := os.Stat(bb)
	return err1 == nil && err2 == nil && os.SameFile(ia, ib)
}

// OutputFileName names the translation of input into lang: a trailing
// "_org" is replaced by "_<lang>", otherwise "_<lang>" is appended.
func OutputFileName(input, lang string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	name = strings.TrimSuffix(name, "_org")
	return name + "_" + lang + ext
}

// IsAbort reports whether err aborted a run at stage.
func IsAbort(err error, stage Stage) bool {
	var ae *AbortError
	return errors.As(err, &ae) && ae.Stage == stage
}
