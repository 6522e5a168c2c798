package importer

import (
	"errors"
	"fmt"
	"strings"

	"quizhub/internal/catalog"
)

var (
	ErrMissingColumn     = errors.New("missing required column")
	ErrMalformedRow      = errors.New("malformed row")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoRows            = errors.New("file has no header row")
)

// Letters are the choice columns in the order they are written.
var Letters = [4]string{"A", "B", "C", "D"}

var requiredColumns = []string{"category", "question", "correct_choice", "choice_a", "choice_b", "choice_c", "choice_d"}

// Row is one validated line of an import file.
type Row struct {
	Line               int
	CategoryPath       []string
	QuizTitle          string
	Question           string
	CorrectLetter      string
	Choices            [4]string
	ExplanationCorrect string
	ExplanationWrong   string
}

// Title returns the explicit quiz title or, when blank, the leaf category name.
func (r Row) Title() string {
	if r.QuizTitle != "" {
		return r.QuizTitle
	}
	return r.CategoryPath[len(r.CategoryPath)-1]
}

// RowError pins a failure to its 1-based line in the source file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// record is one raw line of an import file with its 1-based source line.
// Spreadsheet readers drop trailing blank cells, so ragged marks records whose
// short length is not itself an error.
type record struct {
	line   int
	fields []string
	ragged bool
}

// parseRecords turns a header record plus data records into rows. A malformed
// data record fails the whole file.
func parseRecords(records []record) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrNoRows
	}

	index := make(map[string]int, len(records[0].fields))
	for i, h := range records[0].fields {
		if n := normalizeHeader(h); n != "" {
			if _, dup := index[n]; !dup {
				index[n] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	width := 0
	for _, col := range requiredColumns {
		if index[col]+1 > width {
			width = index[col] + 1
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isRowEmpty(rec.fields) {
			continue
		}
		if !rec.ragged && len(rec.fields) < width {
			return nil, &RowError{Line: rec.line, Err: fmt.Errorf("%w: %d fields, required columns need %d", ErrMalformedRow, len(rec.fields), width)}
		}
		row, err := parseRecord(rec.fields, index, rec.line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(rec []string, index map[string]int, line int) (Row, error) {
	row := Row{
		Line:               line,
		CategoryPath:       catalog.SplitPath(cell(rec, index, "category")),
		QuizTitle:          cell(rec, index, "quiz_title"),
		Question:           cell(rec, index, "question"),
		CorrectLetter:      strings.ToUpper(cell(rec, index, "correct_choice")),
		ExplanationCorrect: cell(rec, index, "explanation_correct"),
		ExplanationWrong:   cell(rec, index, "explanation_wrong"),
	}
	for i, letter := range Letters {
		row.Choices[i] = cell(rec, index, "choice_"+strings.ToLower(letter))
	}

	if len(row.CategoryPath) == 0 {
		return Row{}, &RowError{Line: line, Err: fmt.Errorf("%w: category path is empty", ErrMalformedRow)}
	}
	if row.Question == "" {
		return Row{}, &RowError{Line: line, Err: fmt.Errorf("%w: question is empty", ErrMalformedRow)}
	}
	return row, nil
}

// HasCorrectChoice reports whether correct_choice names one of the choice columns.
func (r Row) HasCorrectChoice() bool {
	return letterIndex(r.CorrectLetter) >= 0
}

func letterIndex(letter string) int {
	for i, l := range Letters {
		if l == letter {
			return i
		}
	}
	return -1
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.ReplaceAll(h, "-", "_")
	h = strings.ReplaceAll(h, " ", "_")
	return h
}

func cell(rec []string, idx map[string]int, key string) string {
	i, ok := idx[key]
	if !ok || i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isRowEmpty(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
