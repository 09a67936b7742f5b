// Package pdf reads, measures and rewrites PDF pages: block extraction,
// font resolution, layout fitting and page reconstruction.
package pdf

import (
	"errors"
	"fmt"
)

// Block types assigned by the extractor.
const (
	BlockParagraph = "paragraph"
	BlockHeading   = "heading"
	BlockCaption   = "caption"
	BlockFootnote  = "footnote"
	BlockListItem  = "list_item"
	BlockFormula   = "formula"
)

// Rect is an axis-aligned box in points with a top-left origin.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns X1-X0.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns Y1-Y0.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Valid reports whether the box has positive area.
func (r Rect) Valid() bool { return r.X1 > r.X0 && r.Y1 > r.Y0 }

// Union returns the smallest box containing r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: minf(r.X0, o.X0),
		Y0: minf(r.Y0, o.Y0),
		X1: maxf(r.X1, o.X1),
		Y1: maxf(r.Y1, o.Y1),
	}
}

// overlapsX reports whether the horizontal ranges of r and o intersect.
func (r Rect) overlapsX(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", r.X0, r.Y0, r.X1, r.Y1)
}

// PageInfo describes one page of the source document.
type PageInfo struct {
	Number int     `json:"number"` // 1-based
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TextBlock is a run of visually contiguous text sharing a style.
type TextBlock struct {
	ID        string  `json:"id"`
	Page      int     `json:"page"`
	Box       Rect    `json:"box"`
	Text      string  `json:"text"`
	FontSize  float64 `json:"font_size"`
	FontName  string  `json:"font_name"`
	IsBold    bool    `json:"is_bold"`
	LineCount int     `json:"line_count"`
	BlockType string  `json:"block_type"`
}

// IsValidTextBlock checks if the TextBlock has valid values
func (b *TextBlock) IsValidTextBlock() bool {
	return b.Page > 0 && b.Box.Valid() && b.FontSize > 0 &&
		b.LineCount > 0 && len(b.Text) > 0 && len(b.BlockType) > 0
}

// FitPlan says how a translated text is drawn inside its block.
type FitPlan struct {
	FontSize   float64  `json:"font_size"`
	LineHeight float64  `json:"line_height"`
	Lines      []string `json:"lines"`
	Overflow   bool     `json:"overflow"`
}

// PDFErrorCode 错误代码枚举
type PDFErrorCode string

const (
	ErrInput           PDFErrorCode = "INPUT_ERROR"
	ErrFontUnavailable PDFErrorCode = "FONT_UNAVAILABLE"
	ErrLayoutOverflow  PDFErrorCode = "LAYOUT_OVERFLOW"
	ErrExtractFailed   PDFErrorCode = "EXTRACT_FAILED"
	ErrGenerateFailed  PDFErrorCode = "GENERATE_FAILED"
)

// PDFError PDF 处理错误
type PDFError struct {
	Code    PDFErrorCode `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Page    int          `json:"page,omitempty"`
	Cause   error        `json:"-"`
}

// Error implements the error interface for PDFError
func (e *PDFError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// NewPDFError creates a new PDFError with the given code, message, and optional cause
func NewPDFError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPDFErrorWithDetails creates a new PDFError with details
func NewPDFErrorWithDetails(code PDFErrorCode, message, details string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPDFErrorWithPage creates a new PDFError with page information
func NewPDFErrorWithPage(code PDFErrorCode, message string, page int, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// IsCode reports whether err is a *PDFError carrying code.
func IsCode(err error, code PDFErrorCode) bool {
	var pe *PDFError
	return errors.As(err, &pe) && pe.Code == code
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
