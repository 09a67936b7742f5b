package pdf

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Glyph is one positioned piece of text from a content stream. Y is the
// baseline measured from the top of the page.
type Glyph struct {
	X    float64
	Y    float64
	W    float64
	Size float64
	Font string
	S    string

	// estimated is set when the reader gave no advance width.
	estimated bool
}

// ExtractOptions tunes how glyphs are grouped. Distances are multiples of
// the font size.
type ExtractOptions struct {
	// LineTolerance is how far two baselines may differ on the same line.
	LineTolerance float64
	// WordGap is the horizontal gap that inserts a space between glyphs.
	WordGap float64
	// ColumnGap is the horizontal gap that splits a line into separate spans.
	ColumnGap float64
	// LineSpacing is the expected baseline distance of consecutive lines.
	LineSpacing float64
	// ParagraphGap is the largest baseline step, in multiples of the line
	// height, that still continues a block.
	ParagraphGap float64
	// SizeTolerance is the relative font size difference allowed inside a block.
	SizeTolerance float64
	// HeadingFactor marks blocks this much larger than the page median as headings.
	HeadingFactor float64
}

// DefaultExtractOptions returns the grouping parameters used by the CLI.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		LineTolerance: 0.5,
		WordGap:       0.15,
		ColumnGap:     2.0,
		LineSpacing:   1.2,
		ParagraphGap:  1.5,
		SizeTolerance: 0.2,
		HeadingFactor: 1.2,
	}
}

const (
	defaultFontSize = 10.0
	ascentRatio     = 0.9
	stackedEpsilon  = 0.01
)

// BlockExtractor groups glyphs into text blocks.
type BlockExtractor struct {
	opts ExtractOptions
}

// NewBlockExtractor creates a BlockExtractor. Zero fields fall back to defaults.
func NewBlockExtractor(opts ExtractOptions) *BlockExtractor {
	def := DefaultExtractOptions()
	if opts.LineTolerance <= 0 {
		opts.LineTolerance = def.LineTolerance
	}
	if opts.WordGap <= 0 {
		opts.WordGap = def.WordGap
	}
	if opts.ColumnGap <= 0 {
		opts.ColumnGap = def.ColumnGap
	}
	if opts.LineSpacing <= 0 {
		opts.LineSpacing = def.LineSpacing
	}
	if opts.ParagraphGap <= 0 {
		opts.ParagraphGap = def.ParagraphGap
	}
	if opts.SizeTolerance <= 0 {
		opts.SizeTolerance = def.SizeTolerance
	}
	if opts.HeadingFactor <= 0 {
		opts.HeadingFactor = def.HeadingFactor
	}
	return &BlockExtractor{opts: opts}
}

type span struct {
	box      Rect
	baseline float64
	text     strings.Builder
	size     float64
	font     string
	weights  map[float64]int
	fonts    map[string]int
	lastX1   float64
}

type blockBuilder struct {
	box          Rect
	lines        []string
	lastBaseline float64
	lastSize     float64
	weights      map[float64]int
	fonts        map[string]int
}

// Group turns the glyphs of one page into blocks in reading order.
// Whitespace-only and garbage runs are dropped; no glyphs yields nil.
func (e *BlockExtractor) Group(page int, glyphs []Glyph) []TextBlock {
	lines := e.groupLines(glyphs)
	if len(lines) == 0 {
		return nil
	}

	var spans []*span
	var sizes []float64
	for _, line := range lines {
		for _, g := range line {
			sizes = append(sizes, g.Size)
		}
		spans = append(spans, e.splitSpans(line)...)
	}
	median := medianOf(sizes)

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].box.Y0 != spans[j].box.Y0 {
			return spans[i].box.Y0 < spans[j].box.Y0
		}
		return spans[i].box.X0 < spans[j].box.X0
	})

	var builders []*blockBuilder
	for _, s := range spans {
		text := strings.TrimSpace(s.text.String())
		if text == "" {
			continue
		}
		if b := e.findBlock(builders, s); b != nil {
			b.box = b.box.Union(s.box)
			b.lines = append(b.lines, text)
			b.lastBaseline = s.baseline
			b.lastSize = s.size
			mergeCounts(b.weights, s.weights)
			mergeCounts(b.fonts, s.fonts)
			continue
		}
		b := &blockBuilder{
			box:          s.box,
			lines:        []string{text},
			lastBaseline: s.baseline,
			lastSize:     s.size,
			weights:      map[float64]int{},
			fonts:        map[string]int{},
		}
		mergeCounts(b.weights, s.weights)
		mergeCounts(b.fonts, s.fonts)
		builders = append(builders, b)
	}

	var blocks []TextBlock
	for _, b := range builders {
		text := strings.Join(strings.Fields(strings.Join(b.lines, " ")), " ")
		if text == "" || isPostScriptCode(text) || hasExcessiveNonPrintable(text) {
			continue
		}
		size := dominant(b.weights)
		font := dominant(b.fonts)
		bold := isBoldFont(font)
		blocks = append(blocks, TextBlock{
			ID:        fmt.Sprintf("p%d-b%d", page, len(blocks)+1),
			Page:      page,
			Box:       b.box,
			Text:      text,
			FontSize:  size,
			FontName:  font,
			IsBold:    bold,
			LineCount: len(b.lines),
			BlockType: determineBlockType(text, size, median*e.opts.HeadingFactor, bold),
		})
	}
	return blocks
}

// groupLines buckets glyphs by baseline and orders each line left to right.
func (e *BlockExtractor) groupLines(glyphs []Glyph) [][]Glyph {
	clean := make([]Glyph, 0, len(glyphs))
	for _, g := range glyphs {
		g.S = strings.ReplaceAll(g.S, string(unicode.ReplacementChar), "")
		if g.S == "" {
			continue
		}
		if g.Size <= 0 {
			g.Size = defaultFontSize
		}
		if g.W <= 0 {
			g.W = float64(len([]rune(g.S))) * g.Size * 0.5
			g.estimated = true
		}
		clean = append(clean, g)
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Y < clean[j].Y })

	var lines [][]Glyph
	var baseline, size float64
	for _, g := range clean {
		n := len(lines)
		if n > 0 && g.Y-baseline <= e.opts.LineTolerance*maxf(size, g.Size) {
			lines[n-1] = append(lines[n-1], g)
			continue
		}
		lines = append(lines, []Glyph{g})
		baseline, size = g.Y, g.Size
	}

	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		spreadStacked(line)
	}
	return lines
}

// spreadStacked lays out glyphs that have no width of their own and share
// the X of the glyph before them. Fonts without /Widths and Identity-H
// fonts read this way: every glyph of a text run sits at the run's origin.
// Each such glyph is moved to the end of the previous one.
func spreadStacked(line []Glyph) {
	var prevX, cursor float64
	for i := range line {
		g := &line[i]
		x := g.X
		if i > 0 && g.estimated && x-prevX < stackedEpsilon && g.X < cursor {
			g.X = cursor
		}
		prevX = x
		cursor = g.X + g.W
	}
}

// splitSpans cuts a line at column-sized gaps and joins the rest into text.
func (e *BlockExtractor) splitSpans(line []Glyph) []*span {
	var spans []*span
	var cur *span
	for _, g := range line {
		box := e.glyphBox(g)
		if cur != nil {
			gap := g.X - cur.lastX1
			if gap > e.opts.ColumnGap*g.Size {
				cur = nil
			} else if gap > e.opts.WordGap*g.Size && !endsWithSpace(&cur.text) && !startsWithSpace(g.S) {
				cur.text.WriteByte(' ')
			}
		}
		if cur == nil {
			cur = &span{
				box:      box,
				baseline: g.Y,
				weights:  map[float64]int{},
				fonts:    map[string]int{},
			}
			spans = append(spans, cur)
		} else {
			cur.box = cur.box.Union(box)
		}
		cur.text.WriteString(g.S)
		cur.lastX1 = g.X + g.W
		n := len([]rune(strings.TrimSpace(g.S)))
		cur.weights[roundSize(g.Size)] += n
		cur.fonts[g.Font] += n
	}
	for _, s := range spans {
		s.size = dominant(s.weights)
		if s.size <= 0 {
			s.size = defaultFontSize
		}
		s.font = dominant(s.fonts)
	}
	return spans
}

// findBlock returns the block the span continues, or nil. A span continues
// a block when it sits on the next line, overlaps it horizontally and has a
// similar font size. The next line may be up to ParagraphGap line heights
// below the last one.
func (e *BlockExtractor) findBlock(builders []*blockBuilder, s *span) *blockBuilder {
	for i := len(builders) - 1; i >= 0; i-- {
		b := builders[i]
		step := s.baseline - b.lastBaseline
		lineHeight := e.opts.LineSpacing * b.lastSize
		if step <= e.opts.LineTolerance*b.lastSize || step > lineHeight*e.opts.ParagraphGap {
			continue
		}
		if !b.box.overlapsX(s.box) {
			continue
		}
		if !similarSize(b.lastSize, s.size, e.opts.SizeTolerance) {
			continue
		}
		return b
	}
	return nil
}

func (e *BlockExtractor) glyphBox(g Glyph) Rect {
	top := g.Y - ascentRatio*g.Size
	return Rect{
		X0: g.X,
		Y0: top,
		X1: g.X + g.W,
		Y1: top + e.opts.LineSpacing*g.Size,
	}
}

func similarSize(a, b, tol float64) bool {
	if a <= 0 || b <= 0 {
		return true
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff/maxf(a, b) <= tol
}

func roundSize(s float64) float64 {
	return float64(int(s*10+0.5)) / 10
}

func mergeCounts[K comparable](dst, src map[K]int) {
	for k, v := range src {
		dst[k] += v
	}
}

// dominant returns the key with the highest count; ties go to the
// smallest key so the result is deterministic.
func dominant[K float64 | string](counts map[K]int) K {
	var best K
	bestN := -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func endsWithSpace(sb *strings.Builder) bool {
	s := sb.String()
	return s == "" || unicode.IsSpace(rune(s[len(s)-1]))
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return true
}

func isBoldFont(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "bold") || strings.Contains(lower, "black") || strings.Contains(lower, "heavy")
}

// isPostScriptCode checks if text looks like PostScript/PDF operator code
// leaked into the text layer.
func isPostScriptCode(text string) bool {
	if len(text) == 0 {
		return false
	}

	textLower := strings.ToLower(text)

	// "/name def" is the most reliable indicator
	if (strings.Contains(text, " def ") || strings.HasSuffix(text, " def")) && strings.Contains(text, "/") {
		return true
	}
	if strings.Contains(textLower, "null def") {
		return true
	}
	if strings.Contains(text, "@stx") || strings.Contains(text, "@etx") {
		return true
	}
	if strings.Contains(textLower, "/burl") || strings.Contains(textLower, "burl@") {
		return true
	}

	psOperators := []string{
		"currentpoint", "gsave", "grestore", "newpath", "closepath",
		"setrgbcolor", "setgray", "setlinewidth", "showpage",
	}
	hits := 0
	for _, op := range psOperators {
		if strings.Contains(textLower, op) {
			hits++
		}
	}
	if hits >= 2 {
		return true
	}

	// PostScript names look like /Name; URLs also have slashes
	if !strings.Contains(text, "://") && !strings.Contains(textLower, "http") {
		slashNameCount := 0
		for _, word := range strings.Fields(text) {
			if len(word) < 2 || word[0] != '/' {
				continue
			}
			isName := true
			for _, c := range word[1:] {
				if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '@') {
					isName = false
					break
				}
			}
			if isName {
				slashNameCount++
			}
		}
		if slashNameCount >= 3 {
			return true
		}
	}

	return false
}

// hasExcessiveNonPrintable checks if text has too many non-printable characters
func hasExcessiveNonPrintable(text string) bool {
	if len(text) == 0 {
		return false
	}

	total, bad := 0, 0
	for _, r := range text {
		total++
		if (r < 32 && r != '\n' && r != '\r' && r != '\t') || (r >= 0x7F && r <= 0x9F) || r == unicode.ReplacementChar {
			bad++
		}
	}
	return float64(bad)/float64(total) > 0.1
}

// determineBlockType classifies a block. headingSize is the size from which
// short blocks count as headings; zero disables the size test.
func determineBlockType(text string, fontSize, headingSize float64, isBold bool) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return BlockParagraph
	}

	if isMathFormula(text) {
		return BlockFormula
	}

	isShort := len([]rune(text)) < 100
	isLargeFont := headingSize > 0 && fontSize >= headingSize

	if isNumberedHeading(text) && isShort {
		return BlockHeading
	}
	if isLargeFont && isShort {
		return BlockHeading
	}
	if isBold && isShort && isAllUpperCase(text) {
		return BlockHeading
	}

	textLower := strings.ToLower(text)
	for _, prefix := range []string{"figure", "table", "fig.", "tab."} {
		if strings.HasPrefix(textLower, prefix) {
			return BlockCaption
		}
	}

	if isListItem(text) {
		return BlockListItem
	}

	if text[0] >= '0' && text[0] <= '9' && len(text) < 200 &&
		strings.Contains(text, ".") && !strings.HasSuffix(text, ".") {
		return BlockFootnote
	}

	return BlockParagraph
}

// isMathFormula checks if text looks like a mathematical formula
func isMathFormula(text string) bool {
	mathSymbols := "∫∑∏√∂∇±×÷≤≥≠≈∞∈∉⊂⊃∪∩∧∨¬∀∃"
	if strings.ContainsAny(text, "∫∑∏√∂∇") {
		return true
	}

	symbols, letters, total := 0, 0, 0
	for _, r := range text {
		total++
		switch {
		case strings.ContainsRune("+-*/=<>^_~()[]{}", r), strings.ContainsRune(mathSymbols, r):
			symbols++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if total > 0 && float64(symbols)/float64(total) > 0.3 {
		return true
	}

	// short "x = y + z" shapes; at most one real word, as in "sin(x) = 0"
	if strings.Contains(text, "=") && strings.ContainsAny(text, "(+-") &&
		len(strings.Fields(text)) <= 5 && len(text) < 100 && letters < 20 {
		return countWords(text) <= 1
	}
	return false
}

// countWords counts runs of three or more letters.
func countWords(text string) int {
	words, run := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			run++
			if run == 3 {
				words++
			}
			continue
		}
		run = 0
	}
	return words
}

// isNumberedHeading checks if text looks like a numbered section heading
func isNumberedHeading(text string) bool {
	textLower := strings.ToLower(text)
	for _, pattern := range []string{
		"chapter ", "section ", "appendix", "abstract", "introduction",
		"conclusion", "references", "bibliography", "acknowledg",
	} {
		if strings.HasPrefix(textLower, pattern) {
			return true
		}
	}

	// "1.2 Title" or "3. Title"
	i := 0
	for i < len(text) && i < 15 && ((text[i] >= '0' && text[i] <= '9') || text[i] == '.') {
		i++
	}
	if i == 0 || i >= len(text) || text[i] != ' ' {
		return false
	}
	return strings.Contains(text[:i], ".") && len(strings.TrimSpace(text[i:])) < 80
}

// isAllUpperCase checks if text is all uppercase letters
func isAllUpperCase(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// isListItem checks if text looks like a list item
func isListItem(text string) bool {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) < 2 {
		return false
	}

	switch runes[0] {
	case '•', '◦', '▪', '▫', '●', '○', '■', '□', '–', '—':
		return true
	case '-', '*':
		return runes[1] == ' '
	}

	if len(runes) >= 3 {
		if runes[0] == '(' && (runes[2] == ')' || (len(runes) > 3 && runes[3] == ')')) {
			return true
		}
		if ((runes[0] >= '0' && runes[0] <= '9') || (runes[0] >= 'a' && runes[0] <= 'z')) && runes[1] == ')' {
			return true
		}
	}
	return false
}
