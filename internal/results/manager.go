// Package results keeps a history of translation runs. Each run is stored
// as metadata.json under a directory named after the source file's content
// hash and the target language, so a moved or renamed input is still
// recognized.
package results

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"pdf-translation/internal/pipeline"
)

// TranslationStatus represents the outcome of a run
type TranslationStatus string

const (
	// StatusComplete indicates the output PDF was saved
	StatusComplete TranslationStatus = "complete"
	// StatusError indicates the run aborted
	StatusError TranslationStatus = "error"
)

// ErrNotFound is returned when no record exists for an ID.
var ErrNotFound = errors.New("translation record not found")

// RunRecord describes one translation of one source file into one language
type RunRecord struct {
	ID             string              `json:"id"`
	SourceHash     string              `json:"source_hash"`
	SourceFileName string              `json:"source_file_name"`
	InputPath      string              `json:"input_path"`
	OutputPath     string              `json:"output_path"`
	TargetLanguage string              `json:"target_language"`
	Status         TranslationStatus   `json:"status"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	TranslatedAt   time.Time           `json:"translated_at"`
	Report         *pipeline.RunReport `json:"report,omitempty"`
}

// Manager manages run records stored in a base directory
type Manager struct {
	baseDir string
	now     func() time.Time
}

// NewManager creates a Manager rooted at baseDir.
// If baseDir is empty, ~/pdftrans-results is used.
func NewManager(baseDir string) (*Manager, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		baseDir = filepath.Join(homeDir, "pdftrans-results")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &Manager{baseDir: baseDir, now: time.Now}, nil
}

// BaseDir returns the directory holding the records
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// RecordID is the record key of a source hash and language.
func RecordID(sourceHash, lang string) string {
	if len(sourceHash) > 16 {
		sourceHash = sourceHash[:16]
	}
	return sourceHash + "_" + sanitize(strings.ToLower(lang))
}

func (m *Manager) recordDir(id string) string {
	return filepath.Join(m.baseDir, sanitize(id))
}

// Record stores the outcome of translating input into output. A later run
// of the same source and language replaces the earlier record.
func (m *Manager) Record(input, output string, report *pipeline.RunReport) (*RunRecord, error) {
	hash, err := HashFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", input, err)
	}

	rec := &RunRecord{
		ID:             RecordID(hash, report.TargetLanguage),
		SourceHash:     hash,
		SourceFileName: filepath.Base(input),
		InputPath:      input,
		OutputPath:     output,
		TargetLanguage: report.TargetLanguage,
		Status:         StatusComplete,
		TranslatedAt:   m.now(),
		Report:         report,
	}
	if !report.Succeeded() {
		rec.Status = StatusError
		rec.ErrorMessage = report.AbortReason
	}
	return rec, m.Save(rec)
}

// Save writes rec to its directory
func (m *Manager) Save(rec *RunRecord) error {
	dir := m.recordDir(rec.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, "metadata.json.tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, "metadata.json"))
}

// Load reads the record with the given ID
func (m *Manager) Load(id string) (*RunRecord, error) {
	data, err := os.ReadFile(filepath.Join(m.recordDir(id), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns every record, newest first. Unreadable entries are skipped.
func (m *Manager) List() ([]*RunRecord, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*RunRecord{}, nil
		}
		return nil, err
	}

	var recs []*RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := m.Load(entry.Name())
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].TranslatedAt.After(recs[j].TranslatedAt)
	})
	return recs, nil
}

// Delete removes a record
func (m *Manager) Delete(id string) error {
	if _, err := m.Load(id); err != nil {
		return err
	}
	return os.RemoveAll(m.recordDir(id))
}

// Incomplete returns the records of failed runs
func (m *Manager) Incomplete() ([]*RunRecord, error) {
	recs, err := m.List()
	if err != nil {
		return nil, err
	}

	var out []*RunRecord
	for _, r := range recs {
		if r.Status != StatusComplete {
			out = append(out, r)
		}
	}
	return out, nil
}

// ExistingTranslation describes what the history knows about an input
type ExistingTranslation struct {
	Exists     bool       `json:"exists"`
	Record     *RunRecord `json:"record,omitempty"`
	IsComplete bool       `json:"is_complete"`
	Message    string     `json:"message"`
}

// CheckExisting looks up a previous translation of input into lang. A
// complete record whose output file has since been removed is reported as
// not complete.
func (m *Manager) CheckExisting(input, lang string) (*ExistingTranslation, error) {
	hash, err := HashFile(input)
	if err != nil {
		return nil, err
	}

	rec, err := m.Load(RecordID(hash, lang))
	if errors.Is(err, ErrNotFound) {
		return &ExistingTranslation{Message: "no previous translation"}, nil
	}
	if err != nil {
		return nil, err
	}

	info := &ExistingTranslation{Exists: true, Record: rec}
	switch {
	case rec.Status != StatusComplete:
		info.Message = fmt.Sprintf("previous run failed: %s", rec.ErrorMessage)
	case !fileExists(rec.OutputPath):
		info.Message = fmt.Sprintf("translated on %s but %s is missing",
			rec.TranslatedAt.Format("2006-01-02 15:04"), rec.OutputPath)
	default:
		info.IsComplete = true
		info.Message = fmt.Sprintf("translated on %s to %s",
			rec.TranslatedAt.Format("2006-01-02 15:04"), rec.OutputPath)
	}
	return info, nil
}

// HashFile returns the hex BLAKE3 digest of a file's content
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := blake3.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func sanitize(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(s)
}
