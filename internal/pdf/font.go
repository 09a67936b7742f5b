package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// FontResource is a TrueType file registered under a family name.
type FontResource struct {
	Family string `json:"family"`
	Path   string `json:"path"`
	Script string `json:"script,omitempty"`
}

// NewFontResource names a font after its file.
func NewFontResource(path, script string) FontResource {
	base := filepath.Base(path)
	return FontResource{
		Family: strings.TrimSuffix(base, filepath.Ext(base)),
		Path:   path,
		Script: script,
	}
}

// defaultFontFiles is the stock language table, one Noto family per script.
var defaultFontFiles = map[string]string{
	"en": "NotoSans-Regular.ttf",
	"hi": "NotoSansDevanagari-Regular.ttf",
	"mr": "NotoSansDevanagari-Regular.ttf",
	"bn": "NotoSansBengali-Regular.ttf",
	"as": "NotoSansBengali-Regular.ttf",
	"kn": "NotoSansKannada-Regular.ttf",
	"ta": "NotoSansTamil-Regular.ttf",
	"te": "NotoSansTelugu-Regular.ttf",
	"gu": "NotoSansGujarati-Regular.ttf",
	"pa": "NotoSansGurmukhi-Regular.ttf",
	"or": "NotoSansOriya-Regular.ttf",
	"ml": "NotoSansMalayalam-Regular.ttf",
}

// DefaultFontTable returns the stock language table rooted at dir.
func DefaultFontTable(dir string) map[string]string {
	table := make(map[string]string, len(defaultFontFiles))
	for lang, file := range defaultFontFiles {
		table[lang] = filepath.Join(dir, file)
	}
	return table
}

var rtlScripts = map[string]bool{
	"Arab": true, "Hebr": true, "Syrc": true, "Thaa": true, "Nkoo": true, "Adlm": true,
}

// LanguageScript returns the ISO 15924 script most likely used to write lang.
func LanguageScript(lang string) (string, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", err
	}
	script, conf := tag.Script()
	if conf == language.No {
		return "", fmt.Errorf("no script known for %q", lang)
	}
	return script.String(), nil
}

// FontTable configures a FontResolver.
type FontTable struct {
	// Languages maps language codes to font files.
	Languages map[string]string
	// Default is used when neither the language nor its script is mapped.
	Default string
	// AllowRTL permits right-to-left scripts.
	AllowRTL bool
}

// FontResolver picks the font for a target language. Lookup order is the
// exact language code, then any font mapped for the same script, then the
// default font.
type FontResolver struct {
	byLang   map[string]FontResource
	byScript map[string]FontResource
	fallback *FontResource
	allowRTL bool
	load     func(FontResource) error
}

// NewFontResolver builds a resolver from table.
func NewFontResolver(table FontTable) *FontResolver {
	r := &FontResolver{
		byLang:   make(map[string]FontResource),
		byScript: make(map[string]FontResource),
		allowRTL: table.AllowRTL,
		load: func(f FontResource) error {
			_, err := loadFont(f)
			return err
		},
	}

	langs := make([]string, 0, len(table.Languages))
	for lang := range table.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	for _, lang := range langs {
		key := strings.ToLower(lang)
		script, _ := LanguageScript(key)
		res := NewFontResource(table.Languages[lang], script)
		r.byLang[key] = res
		if script != "" {
			if _, ok := r.byScript[script]; !ok {
				r.byScript[script] = res
			}
		}
	}

	if table.Default != "" {
		def := NewFontResource(table.Default, "")
		r.fallback = &def
	}
	return r
}

// WithFontOverride maps lang to an explicit font file, replacing the table entry.
func (r *FontResolver) WithFontOverride(lang, path string) *FontResolver {
	key := strings.ToLower(lang)
	script, _ := LanguageScript(key)
	r.byLang[key] = NewFontResource(path, script)
	return r
}

// Resolve returns the font for lang, or ErrFontUnavailable. The returned
// file is checked to exist; loading is left to Check.
func (r *FontResolver) Resolve(lang string) (FontResource, error) {
	key := strings.ToLower(strings.TrimSpace(lang))
	script, err := LanguageScript(key)
	if err != nil {
		return FontResource{}, NewPDFErrorWithDetails(ErrFontUnavailable, "unrecognized language code", lang, err)
	}
	if rtlScripts[script] && !r.allowRTL {
		return FontResource{}, NewPDFErrorWithDetails(ErrFontUnavailable,
			"right-to-left script not enabled", fmt.Sprintf("%s (%s)", lang, script), nil)
	}

	res, ok := r.byLang[key]
	if !ok {
		if tag, err := language.Parse(key); err == nil {
			base, _ := tag.Base()
			res, ok = r.byLang[base.String()]
		}
	}
	if !ok {
		res, ok = r.byScript[script]
	}
	if !ok && r.fallback != nil {
		res, ok = *r.fallback, true
	}
	if !ok {
		return FontResource{}, NewPDFErrorWithDetails(ErrFontUnavailable,
			"no font mapped for language", fmt.Sprintf("%s (%s)", lang, script), nil)
	}

	if _, err := os.Stat(res.Path); err != nil {
		return FontResource{}, NewPDFErrorWithDetails(ErrFontUnavailable, "font file not accessible", res.Path, err)
	}
	if res.Script == "" {
		res.Script = script
	}
	return res, nil
}

// Check verifies that font loads as a TrueType font.
func (r *FontResolver) Check(font FontResource) error {
	if _, err := os.Stat(font.Path); err != nil {
		return NewPDFErrorWithDetails(ErrFontUnavailable, "font file not accessible", font.Path, err)
	}
	return r.load(font)
}

// FontEntry is one row of the resolver table.
type FontEntry struct {
	Language string
	Font     FontResource
}

// Entries lists the language table sorted by code.
func (r *FontResolver) Entries() []FontEntry {
	entries := make([]FontEntry, 0, len(r.byLang))
	for lang, res := range r.byLang {
		entries = append(entries, FontEntry{Language: lang, Font: res})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Language < entries[j].Language })
	return entries
}

// Validate checks every mapped font, the default included, and returns
// all failures joined.
func (r *FontResolver) Validate() error {
	seen := make(map[string]bool)
	var errs []error
	check := func(res FontResource) {
		if seen[res.Path] {
			return
		}
		seen[res.Path] = true
		if err := r.Check(res); err != nil {
			errs = append(errs, err)
		}
	}
	for _, e := range r.Entries() {
		check(e.Font)
	}
	if r.fallback != nil {
		check(*r.fallback)
	}
	return errors.Join(errs...)
}
