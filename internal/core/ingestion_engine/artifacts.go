package ingestion_engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/models"
)

// equationPattern matches inline TeX: $...$, \(...\) and \[...\].
var equationPattern = regexp.MustCompile(`\$[^$]+\$|\\\(.*?\\\)|\\\[.*?\\\]`)

// Equation is one TeX fragment found in a page's text.
type Equation struct {
	Page int
	Text string
}

// FindEquations returns the TeX fragments in text, in order of appearance.
func FindEquations(pageNumber int, text string) []Equation {
	matches := equationPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Equation, len(matches))
	for i, m := range matches {
		out[i] = Equation{Page: pageNumber, Text: m}
	}
	return out
}

// ArtifactWriter writes the plain-text side outputs of a run:
//
//	<textDir>/page_<n>.txt
//	<textDir>/full_text.txt
//	<equationsDir>/equations.csv
//
// Files are rewritten on every run.
type ArtifactWriter struct {
	textDir      string
	equationsDir string
}

func NewArtifactWriter(textDir, equationsDir string) *ArtifactWriter {
	return &ArtifactWriter{textDir: textDir, equationsDir: equationsDir}
}

// Write stores the per-page and full-document text, and the equations found
// across pages. It returns the equations it wrote.
func (w *ArtifactWriter) Write(pages []models.DecodedPage) ([]Equation, error) {
	if err := os.MkdirAll(w.textDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
	}

	var (
		full []string
		eqs  []Equation
	)
	for _, p := range pages {
		name := filepath.Join(w.textDir, "page_"+strconv.Itoa(p.PageNumber)+".txt")
		if err := os.WriteFile(name, []byte(p.Text), 0o644); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
		}
		full = append(full, p.Text)
		eqs = append(eqs, FindEquations(p.PageNumber, p.Text)...)
	}

	fullPath := filepath.Join(w.textDir, "full_text.txt")
	if err := os.WriteFile(fullPath, []byte(strings.Join(full, "\n")), 0o644); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
	}

	if len(eqs) == 0 {
		// A csv from an earlier document must not outlive it.
		err := os.Remove(filepath.Join(w.equationsDir, "equations.csv"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
		}
		return nil, nil
	}
	if err := w.writeEquations(eqs); err != nil {
		return nil, err
	}
	return eqs, nil
}

func (w *ArtifactWriter) writeEquations(eqs []Equation) error {
	if err := os.MkdirAll(w.equationsDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
	}
	f, err := os.Create(filepath.Join(w.equationsDir, "equations.csv"))
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	_ = cw.Write([]string{"page", "equation"})
	for _, e := range eqs {
		_ = cw.Write([]string{strconv.Itoa(e.Page), e.Text})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
	}
	return f.Close()
}
