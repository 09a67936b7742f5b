package pdf

import (
	"fmt"
	"sync"
	"unicode"

	gopdf "github.com/VantageDataChat/GoPDF2"

	"pdf-translation/internal/logger"
)

// TextMeasurer reports the advance width of text at a font size, in points.
type TextMeasurer interface {
	TextWidth(text string, size float64) float64
}

// EstimateMeasurer approximates advance widths from the script of each rune.
// It needs no font file and is used when real metrics are unavailable.
type EstimateMeasurer struct{}

// TextWidth implements TextMeasurer.
func (EstimateMeasurer) TextWidth(text string, size float64) float64 {
	width := 0.0
	for _, r := range text {
		width += runeAdvance(r) * size
	}
	return width
}

// runeAdvance returns the approximate advance of r as a fraction of the em.
func runeAdvance(r rune) float64 {
	switch {
	case unicode.In(r, unicode.Mn, unicode.Me, unicode.Cf):
		return 0
	case r == ' ' || r == '\t' || r == '\u00a0':
		return 0.25
	case isWide(r):
		return 1.0
	case unicode.In(r, indicScripts...):
		return 0.6
	case unicode.IsUpper(r):
		return 0.65
	case unicode.IsDigit(r):
		return 0.55
	case unicode.IsPunct(r):
		return 0.3
	default:
		return 0.5
	}
}

var indicScripts = []*unicode.RangeTable{
	unicode.Devanagari, unicode.Bengali, unicode.Gurmukhi, unicode.Gujarati,
	unicode.Oriya, unicode.Tamil, unicode.Telugu, unicode.Kannada,
	unicode.Malayalam, unicode.Sinhala,
}

// isWide reports CJK ideographs, kana, hangul and full-width forms.
func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0xFF01 && r <= 0xFF60) || (r >= 0x3000 && r <= 0x303F)
}

// GoPDFMeasurer measures text with the TrueType metrics of a loaded font.
type GoPDFMeasurer struct {
	mu       sync.Mutex
	pdf      *gopdf.GoPdf
	family   string
	fallback EstimateMeasurer
	warned   bool
}

// NewGoPDFMeasurer loads font into a scratch document used only for measuring.
func NewGoPDFMeasurer(font FontResource) (*GoPDFMeasurer, error) {
	gp, err := loadFont(font)
	if err != nil {
		return nil, err
	}
	return &GoPDFMeasurer{pdf: gp, family: font.Family}, nil
}

// TextWidth implements TextMeasurer. Measurement failures fall back to
// the estimate so fitting never fails.
func (m *GoPDFMeasurer) TextWidth(text string, size float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pdf.SetFont(m.family, "", size); err == nil {
		if w, err := m.pdf.MeasureTextWidth(text); err == nil {
			return w
		} else if !m.warned {
			m.warned = true
			logger.Warn("font measurement failed, using estimate",
				logger.String("family", m.family), logger.Err(err))
		}
	}
	return m.fallback.TextWidth(text, size)
}

// loadFont returns a scratch document with one page and font registered.
// It fails when the file is missing or not a usable TrueType font.
func loadFont(font FontResource) (*gopdf.GoPdf, error) {
	gp, err := newFontDocument(font)
	if err != nil {
		return nil, err
	}
	gp.AddPage()
	return gp, nil
}

// newFontDocument starts an empty document with font registered.
func newFontDocument(font FontResource) (gp *gopdf.GoPdf, err error) {
	defer func() {
		if r := recover(); r != nil {
			gp = nil
			err = NewPDFErrorWithDetails(ErrFontUnavailable, "failed to load font", font.Path, fmt.Errorf("%v", r))
		}
	}()

	gp = &gopdf.GoPdf{}
	gp.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	if err := gp.AddTTFFont(font.Family, font.Path); err != nil {
		return nil, NewPDFErrorWithDetails(ErrFontUnavailable, "failed to load font", font.Path, err)
	}
	return gp, nil
}
