package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	gopdf "github.com/VantageDataChat/GoPDF2"

	"pdf-translation/internal/logger"
)

// Color is an RGB triple.
type Color struct{ R, G, B uint8 }

var (
	white = Color{255, 255, 255}
	black = Color{0, 0, 0}
)

// Reconstructor writes the translated document. Each source page is
// imported as a template so images and vector content stay untouched;
// block boxes are painted over and the fitted lines drawn on top.
// A Reconstructor is a single writer and is not safe for concurrent use.
type Reconstructor struct {
	src      string
	font     FontResource
	pdf      *gopdf.GoPdf
	pages    int
	tmpFiles []string
	Erase    Color
	Ink      Color
}

// NewReconstructor starts an output document for src using font.
func NewReconstructor(src string, font FontResource) (*Reconstructor, error) {
	gp, err := newFontDocument(font)
	if err != nil {
		return nil, err
	}

	return &Reconstructor{
		src:   src,
		font:  font,
		pdf:   gp,
		Erase: white,
		Ink:   black,
	}, nil
}

// RenderPage appends page to the output. blocks[i] is drawn with plans[i].
// A page without blocks is copied unchanged.
func (r *Reconstructor) RenderPage(page PageInfo, blocks []TextBlock, plans []FitPlan) (err error) {
	if err := checkPlans(blocks, plans); err != nil {
		return NewPDFErrorWithPage(ErrGenerateFailed, "cannot render page", page.Number, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = NewPDFErrorWithPage(ErrGenerateFailed, "failed to render page", page.Number, fmt.Errorf("%v", rec))
		}
	}()

	r.pdf.AddPageWithOption(gopdf.PageOption{
		PageSize: &gopdf.Rect{W: page.Width, H: page.Height},
	})
	tpl := r.pdf.ImportPage(r.src, page.Number, "/MediaBox")
	r.pdf.UseImportedTemplate(tpl, 0, 0, page.Width, page.Height)
	r.pages++

	for i, block := range blocks {
		if err := r.drawBlock(block, plans[i]); err != nil {
			return NewPDFErrorWithPage(ErrGenerateFailed, "failed to draw block "+block.ID, page.Number, err)
		}
	}

	logger.Debug("page rendered",
		logger.Int("page", page.Number),
		logger.Int("blocks", len(blocks)))
	return nil
}

func (r *Reconstructor) drawBlock(block TextBlock, plan FitPlan) error {
	box := block.Box

	r.pdf.SetFillColor(r.Erase.R, r.Erase.G, r.Erase.B)
	r.pdf.RectFromUpperLeftWithStyle(box.X0, box.Y0, box.Width(), box.Height(), "F")

	if err := r.pdf.SetFont(r.font.Family, "", plan.FontSize); err != nil {
		return err
	}
	r.pdf.SetTextColor(r.Ink.R, r.Ink.G, r.Ink.B)

	for i, line := range plan.Lines {
		if line == "" {
			continue
		}
		r.pdf.SetXY(box.X0, box.Y0+float64(i)*plan.LineHeight)
		if err := r.pdf.Cell(nil, line); err != nil {
			return err
		}
	}
	return nil
}

// Pages returns the number of pages rendered so far.
func (r *Reconstructor) Pages() int { return r.pages }

// Save writes the document to outputPath. The file appears only once it is
// complete: it is written next to the target, compacted and renamed.
func (r *Reconstructor) Save(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return NewPDFError(ErrGenerateFailed, "failed to create output directory", err)
	}

	raw, err := os.CreateTemp(dir, ".pdftrans-*.pdf")
	if err != nil {
		return NewPDFError(ErrGenerateFailed, "failed to create temporary file", err)
	}
	raw.Close()
	r.tmpFiles = append(r.tmpFiles, raw.Name())
	defer r.Discard()

	if err := r.pdf.WritePdf(raw.Name()); err != nil {
		return NewPDFError(ErrGenerateFailed, "failed to write PDF", err)
	}

	final := raw.Name()
	optimized := raw.Name() + ".opt"
	r.tmpFiles = append(r.tmpFiles, optimized)
	if err := optimizeInto(raw.Name(), optimized); err != nil {
		logger.Warn("keeping unoptimized output", logger.Err(err))
	} else {
		final = optimized
	}

	if err := os.Rename(final, outputPath); err != nil {
		return NewPDFError(ErrGenerateFailed, "failed to move output into place", err)
	}
	return nil
}

// Discard removes temporary files left by an unfinished Save.
func (r *Reconstructor) Discard() {
	for _, f := range r.tmpFiles {
		os.Remove(f)
	}
	r.tmpFiles = nil
}

func checkPlans(blocks []TextBlock, plans []FitPlan) error {
	if len(blocks) != len(plans) {
		return fmt.Errorf("%d blocks but %d fit plans", len(blocks), len(plans))
	}
	for i, b := range blocks {
		if !b.Box.Valid() {
			return fmt.Errorf("block %s has an empty box %s", b.ID, b.Box)
		}
		if plans[i].FontSize <= 0 || plans[i].LineHeight <= 0 {
			return fmt.Errorf("block %s has an unusable fit plan", b.ID)
		}
	}
	return nil
}
