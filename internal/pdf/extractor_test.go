package pdf

import (
	"math"
	"testing"
)

// lineGlyphs lays text out one glyph per rune with a fixed advance of half
// the font size, the way content streams of simple PDFs look.
func lineGlyphs(x, baseline, size float64, font, text string) []Glyph {
	var glyphs []Glyph
	adv := size * 0.5
	for _, r := range text {
		if r == ' ' {
			x += adv
			continue
		}
		glyphs = append(glyphs, Glyph{X: x, Y: baseline, W: adv, Size: size, Font: font, S: string(r)})
		x += adv
	}
	return glyphs
}

func concat(parts ...[]Glyph) []Glyph {
	var out []Glyph
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestGroupMergesConsecutiveLines(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	glyphs := concat(
		lineGlyphs(72, 100, 12, "Times-Roman", "Hello world"),
		lineGlyphs(72, 114, 12, "Times-Roman", "again here"),
	)

	blocks := e.Group(1, glyphs)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1: %+v", len(blocks), blocks)
	}

	b := blocks[0]
	if b.Text != "Hello world again here" {
		t.Errorf("Text = %q", b.Text)
	}
	if b.LineCount != 2 {
		t.Errorf("LineCount = %d, want 2", b.LineCount)
	}
	if b.ID != "p1-b1" || b.Page != 1 {
		t.Errorf("ID/Page = %s/%d", b.ID, b.Page)
	}
	if b.FontSize != 12 || b.FontName != "Times-Roman" {
		t.Errorf("style = %v %s", b.FontSize, b.FontName)
	}
	if !approx(b.Box.X0, 72) || !approx(b.Box.Y0, 100-0.9*12) || !approx(b.Box.Y1, 114-0.9*12+1.2*12) {
		t.Errorf("Box = %s", b.Box)
	}
	if !b.IsValidTextBlock() {
		t.Errorf("block should be valid: %+v", b)
	}
}

func TestGroupMergesLooselyLeadedLines(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	for _, leading := range []float64{14, 15.5, 16, 16.8, 18} {
		glyphs := concat(
			lineGlyphs(72, 100, 12, "F", "Body text set on a loose"),
			lineGlyphs(72, 100+leading, 12, "F", "leading still reads as one"),
			lineGlyphs(72, 100+2*leading, 12, "F", "paragraph."),
		)
		blocks := e.Group(1, glyphs)
		if len(blocks) != 1 || blocks[0].LineCount != 3 {
			t.Errorf("leading %v: got %d blocks, want one of 3 lines", leading, len(blocks))
		}
	}
}

func TestGroupParagraphGapOption(t *testing.T) {
	glyphs := concat(
		lineGlyphs(72, 100, 12, "F", "first line"),
		lineGlyphs(72, 118, 12, "F", "second line"),
	)
	if n := len(NewBlockExtractor(ExtractOptions{ParagraphGap: 1.1}).Group(1, glyphs)); n != 2 {
		t.Errorf("tight ParagraphGap: %d blocks, want 2", n)
	}
	if n := len(NewBlockExtractor(ExtractOptions{}).Group(1, glyphs)); n != 1 {
		t.Errorf("default ParagraphGap: %d blocks, want 1", n)
	}
}

// stackedGlyphs reproduces a text run read without glyph widths: every
// rune sits at the run origin with W=0.
func stackedGlyphs(x, baseline, size float64, text string) []Glyph {
	var glyphs []Glyph
	for _, r := range text {
		glyphs = append(glyphs, Glyph{X: x, Y: baseline, Size: size, Font: "goregular", S: string(r)})
	}
	return glyphs
}

func TestGroupSpreadsZeroWidthGlyphs(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	glyphs := concat(
		stackedGlyphs(72, 100, 12, "Hello world from page one\uFFFD"),
		stackedGlyphs(72, 116, 12, "and the next line"),
	)

	blocks := e.Group(1, glyphs)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks: %+v", len(blocks), blocks)
	}
	b := blocks[0]
	if b.Text != "Hello world from page one and the next line" {
		t.Errorf("Text = %q", b.Text)
	}
	// 25 runes at half an em each
	if !approx(b.Box.X0, 72) || !approx(b.Box.Width(), 25*6) {
		t.Errorf("Box = %s, want 150pt wide from x=72", b.Box)
	}
}

func TestGroupKeepsPositionedZeroWidthGlyphs(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	// widths missing but every glyph has its own X
	glyphs := lineGlyphs(72, 100, 10, "F", "abc def")
	for i := range glyphs {
		glyphs[i].W = 0
	}

	blocks := e.Group(1, glyphs)
	if len(blocks) != 1 || blocks[0].Text != "abc def" {
		t.Fatalf("blocks = %+v", blocks)
	}
	if !approx(blocks[0].Box.X1, 72+7*5) {
		t.Errorf("Box = %s", blocks[0].Box)
	}
}

func TestGroupSplitsParagraphsOnLargeGap(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	glyphs := concat(
		lineGlyphs(72, 100, 12, "F", "First paragraph"),
		lineGlyphs(72, 140, 12, "F", "Second paragraph"),
	)

	blocks := e.Group(2, glyphs)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Text != "First paragraph" || blocks[1].Text != "Second paragraph" {
		t.Errorf("texts = %q, %q", blocks[0].Text, blocks[1].Text)
	}
	if blocks[1].ID != "p2-b2" {
		t.Errorf("second ID = %s", blocks[1].ID)
	}
}

func TestGroupSeparatesColumns(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	glyphs := concat(
		lineGlyphs(72, 100, 10, "F", "left one"),
		lineGlyphs(320, 100, 10, "F", "right one"),
		lineGlyphs(72, 112, 10, "F", "left two"),
		lineGlyphs(320, 112, 10, "F", "right two"),
	)

	blocks := e.Group(1, glyphs)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2: %+v", len(blocks), blocks)
	}
	if blocks[0].Text != "left one left two" {
		t.Errorf("left column = %q", blocks[0].Text)
	}
	if blocks[1].Text != "right one right two" {
		t.Errorf("right column = %q", blocks[1].Text)
	}
	if blocks[0].Box.overlapsX(blocks[1].Box) {
		t.Error("column boxes should not overlap")
	}
}

func TestGroupSplitsOnFontSizeChange(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	glyphs := concat(
		lineGlyphs(72, 80, 18, "Helvetica-Bold", "Results"),
		lineGlyphs(72, 100, 10, "Helvetica", "The experiment shows a clear effect on"),
		lineGlyphs(72, 112, 10, "Helvetica", "every measured sample in the study."),
	)

	blocks := e.Group(1, glyphs)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].BlockType != BlockHeading {
		t.Errorf("first block type = %s, want heading", blocks[0].BlockType)
	}
	if !blocks[0].IsBold {
		t.Error("bold font name should set IsBold")
	}
	if blocks[1].BlockType != BlockParagraph || blocks[1].LineCount != 2 {
		t.Errorf("second block = %s with %d lines", blocks[1].BlockType, blocks[1].LineCount)
	}
}

func TestGroupOrdersGlyphsWithinLine(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())
	glyphs := lineGlyphs(50, 200, 12, "F", "abc def")
	for i, j := 0, len(glyphs)-1; i < j; i, j = i+1, j-1 {
		glyphs[i], glyphs[j] = glyphs[j], glyphs[i]
	}
	// slight baseline jitter stays on the same line
	glyphs[0].Y += 0.8

	blocks := e.Group(1, glyphs)
	if len(blocks) != 1 || blocks[0].Text != "abc def" {
		t.Fatalf("blocks = %+v", blocks)
	}
}

func TestGroupDropsEmptyAndGarbage(t *testing.T) {
	e := NewBlockExtractor(DefaultExtractOptions())

	if blocks := e.Group(1, nil); blocks != nil {
		t.Errorf("no glyphs should yield nil, got %+v", blocks)
	}

	spaces := []Glyph{
		{X: 10, Y: 50, W: 3, Size: 12, S: " "},
		{X: 13, Y: 50, W: 3, Size: 12, S: "\t"},
	}
	if blocks := e.Group(1, spaces); len(blocks) != 0 {
		t.Errorf("whitespace-only glyphs should yield no blocks, got %+v", blocks)
	}

	garbage := lineGlyphs(72, 300, 8, "F", "/Name1 /Name2 /Name3 null def")
	if blocks := e.Group(1, garbage); len(blocks) != 0 {
		t.Errorf("PostScript residue should be dropped, got %+v", blocks)
	}
}

func TestGroupDefaultsMissingMetrics(t *testing.T) {
	e := NewBlockExtractor(ExtractOptions{})
	glyphs := []Glyph{{X: 10, Y: 40, S: "word"}}

	blocks := e.Group(1, glyphs)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks", len(blocks))
	}
	if blocks[0].FontSize != defaultFontSize || !blocks[0].Box.Valid() {
		t.Errorf("block = %+v", blocks[0])
	}
}

func TestDetermineBlockType(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		size        float64
		headingSize float64
		bold        bool
		want        string
	}{
		{"numbered heading", "2.1 Related Work", 10, 12, false, BlockHeading},
		{"large font", "Overview", 16, 12, false, BlockHeading},
		{"bold caps", "ABSTRACT", 10, 12, true, BlockHeading},
		{"caption", "Figure 3: Accuracy over time", 9, 12, false, BlockCaption},
		{"bullet", "• first point", 10, 12, false, BlockListItem},
		{"formula", "∑ x_i = 1", 10, 12, false, BlockFormula},
		{"short equation", "y = a - b", 10, 12, false, BlockFormula},
		{"function equation", "sin(x) = 0", 10, 12, false, BlockFormula},
		{"prose with equals", "Price = 5 (approx)", 10, 12, false, BlockParagraph},
		{"paragraph", "This is ordinary running text in a paragraph.", 10, 12, false, BlockParagraph},
		{"no heading size", "Overview", 16, 0, false, BlockParagraph},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := determineBlockType(tt.text, tt.size, tt.headingSize, tt.bold); got != tt.want {
				t.Errorf("determineBlockType(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsPostScriptCode(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"/burl@stx null def", true},
		{"gsave 1 0 0 setrgbcolor grestore", true},
		{"/A /B /C", true},
		{"See https://example.com/a/b/c for details", false},
		{"We define the model below.", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isPostScriptCode(tt.text); got != tt.want {
			t.Errorf("isPostScriptCode(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestHasExcessiveNonPrintable(t *testing.T) {
	if hasExcessiveNonPrintable("plain text") {
		t.Error("plain text flagged")
	}
	if !hasExcessiveNonPrintable("\x01\x02\x03ab") {
		t.Error("control characters not flagged")
	}
}
