package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pdf-translation/internal/logger"
)

// Document is an opened source PDF. Page geometry comes from pdfcpu,
// glyph positions from ledongthuc/pdf.
type Document struct {
	path      string
	pages     []PageInfo
	file      *os.File
	reader    *pdf.Reader
	extractor *BlockExtractor
}

// OpenDocument validates the file and loads its page geometry. Any problem
// with the input is reported as ErrInput.
func OpenDocument(path string, extractor *BlockExtractor) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewPDFErrorWithDetails(ErrInput, "input file not found", path, err)
		}
		return nil, NewPDFErrorWithDetails(ErrInput, "cannot access input file", path, err)
	}
	if info.IsDir() {
		return nil, NewPDFErrorWithDetails(ErrInput, "input path is a directory", path, nil)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return nil, NewPDFErrorWithDetails(ErrInput, "invalid or corrupt PDF", filepath.Base(path), err)
	}

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, NewPDFErrorWithDetails(ErrInput, "failed to read PDF", filepath.Base(path), err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, NewPDFErrorWithDetails(ErrInput, "failed to read page dimensions", filepath.Base(path), err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, NewPDFErrorWithDetails(ErrInput, "failed to open PDF text layer", filepath.Base(path), err)
	}

	pages := make([]PageInfo, len(dims))
	for i, d := range dims {
		pages[i] = PageInfo{Number: i + 1, Width: d.Width, Height: d.Height}
	}
	if n := r.NumPage(); n != len(pages) {
		logger.Warn("page count mismatch between readers",
			logger.Int("pdfcpu", len(pages)),
			logger.Int("text", n))
	}

	if extractor == nil {
		extractor = NewBlockExtractor(DefaultExtractOptions())
	}

	logger.Info("document opened",
		logger.String("file", filepath.Base(path)),
		logger.Int("pages", len(pages)),
		logger.Int64("size", info.Size()))

	return &Document{
		path:      path,
		pages:     pages,
		file:      f,
		reader:    r,
		extractor: extractor,
	}, nil
}

// Path returns the source file path.
func (d *Document) Path() string { return d.path }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the geometry of page n (1-based).
func (d *Document) Page(n int) PageInfo { return d.pages[n-1] }

// Pages returns the geometry of every page in order.
func (d *Document) Pages() []PageInfo {
	return append([]PageInfo(nil), d.pages...)
}

// ExtractBlocks returns the text blocks of page n. A page without a text
// layer yields no blocks. A content stream the reader cannot decode is
// reported as ErrExtractFailed.
func (d *Document) ExtractBlocks(n int) (blocks []TextBlock, err error) {
	page := d.Page(n)
	if n > d.reader.NumPage() {
		return nil, nil
	}

	p := d.reader.Page(n)
	if p.V.IsNull() {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			blocks = nil
			err = NewPDFErrorWithPage(ErrExtractFailed, "failed to decode page content", n, fmt.Errorf("%v", r))
		}
	}()

	content := p.Content()
	glyphs := make([]Glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, Glyph{
			X:    t.X,
			Y:    page.Height - t.Y,
			W:    t.W,
			Size: t.FontSize,
			Font: t.Font,
			S:    t.S,
		})
	}

	return d.extractor.Group(n, glyphs), nil
}

// Close releases the underlying file.
func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// PageCountFile returns the number of pages of a PDF without opening its
// text layer.
func PageCountFile(path string) (int, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, NewPDFError(ErrInput, "failed to read PDF", err)
	}
	return ctx.PageCount, nil
}

// optimizeInto compacts src into dst with pdfcpu.
func optimizeInto(src, dst string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.OptimizeFile(src, dst, conf); err != nil {
		return fmt.Errorf("failed to optimize PDF: %w", err)
	}
	return nil
}
