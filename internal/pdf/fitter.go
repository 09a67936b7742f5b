package pdf

import (
	"math"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// fitEpsilon absorbs float noise when comparing against box edges.
const fitEpsilon = 0.01

// Fitter fits translated text into a block's box: wrap at word
// boundaries, then shrink step by step down to a floor, then clip.
type Fitter struct {
	// MinFontSize is the floor. A block whose own size is below the floor
	// never grows; its own size becomes the floor.
	MinFontSize float64
	// Step is the shrink decrement in points.
	Step float64
	// LineSpacing is the line height as a multiple of the font size.
	LineSpacing float64
}

// NewFitter creates a Fitter, substituting defaults for non-positive values.
func NewFitter(minFontSize, step, lineSpacing float64) *Fitter {
	if minFontSize <= 0 {
		minFontSize = 6
	}
	if step <= 0 {
		step = 0.5
	}
	if lineSpacing < 1 {
		lineSpacing = 1.2
	}
	return &Fitter{MinFontSize: minFontSize, Step: step, LineSpacing: lineSpacing}
}

// Fit returns the largest size on the shrink ladder at which text fits the
// block's box. If even the floor does not fit, the plan is clipped to the
// lines the box can hold (at least one) and marked Overflow. Fit never fails.
func (f *Fitter) Fit(block TextBlock, text string, m TextMeasurer) FitPlan {
	start := block.FontSize
	if start <= 0 {
		start = defaultFontSize
	}
	floor := math.Min(f.MinFontSize, start)
	width := block.Box.Width()
	height := block.Box.Height()
	text = strings.Join(strings.Fields(text), " ")

	size := start
	for {
		lines, widthOK := f.wrap(text, size, width, m)
		lineHeight := size * f.LineSpacing
		maxLines := int((height + fitEpsilon) / lineHeight)

		if widthOK && len(lines) <= maxLines {
			return FitPlan{FontSize: size, LineHeight: lineHeight, Lines: lines}
		}

		if size <= floor {
			if maxLines < 1 {
				maxLines = 1
			}
			if len(lines) > maxLines {
				lines = lines[:maxLines]
			}
			return FitPlan{FontSize: size, LineHeight: lineHeight, Lines: lines, Overflow: true}
		}

		size = math.Max(size-f.Step, floor)
	}
}

// Wrap breaks text into lines no wider than width at the given size.
func (f *Fitter) Wrap(text string, size, width float64, m TextMeasurer) []string {
	lines, _ := f.wrap(strings.Join(strings.Fields(text), " "), size, width, m)
	return lines
}

// wrap fills lines greedily. Words are split on spaces; text in scripts
// written without spaces, and words wider than the line, break between
// grapheme clusters. widthOK is false only when a single cluster is wider
// than the box.
func (f *Fitter) wrap(text string, size, width float64, m TextMeasurer) (lines []string, widthOK bool) {
	if text == "" {
		return []string{""}, true
	}
	widthOK = true

	var line strings.Builder
	lineWidth := 0.0
	space := m.TextWidth(" ", size)

	flush := func() {
		lines = append(lines, line.String())
		line.Reset()
		lineWidth = 0
	}

	// place appends a piece; sep says whether it needs a space before it.
	place := func(piece string, sep bool) {
		w := m.TextWidth(piece, size)
		extra := 0.0
		if sep && line.Len() > 0 {
			extra = space
		}
		if line.Len() > 0 && lineWidth+extra+w > width+fitEpsilon {
			flush()
			extra = 0
		}
		if line.Len() > 0 && extra > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(piece)
		lineWidth += extra + w
	}

	for _, word := range strings.Split(text, " ") {
		if m.TextWidth(word, size) <= width+fitEpsilon && !breaksAnywhere(word) {
			place(word, true)
			continue
		}

		first := true
		g := uniseg.NewGraphemes(word)
		for g.Next() {
			cluster := g.Str()
			if m.TextWidth(cluster, size) > width+fitEpsilon {
				widthOK = false
			}
			place(cluster, first)
			first = false
		}
	}
	if line.Len() > 0 {
		flush()
	}
	return lines, widthOK
}

// breaksAnywhere reports text in scripts that wrap between characters.
func breaksAnywhere(word string) bool {
	for _, r := range word {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}
