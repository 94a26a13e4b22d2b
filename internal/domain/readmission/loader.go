package readmission

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrInvalidNumber is returned for a count cell that is not a non-negative integer.
	ErrInvalidNumber = errors.New("invalid number")
)

// AgeFormat describes how the age column is encoded.
type AgeFormat string

const (
	// AgeFormatBracket means cells already hold bracket labels such as "[50-60)".
	AgeFormatBracket AgeFormat = "bracket"
	// AgeFormatYears means cells hold an integer age that is bracketed on load.
	AgeFormatYears AgeFormat = "years"
)

// Schema names the source columns. Header matching is case-sensitive.
type Schema struct {
	EncounterID   string
	Age           string
	Gender        string
	AdmissionType string
	Insulin       string
	Race          string
	Stay          string
	Medications   string
	Diagnoses     string
	Outcome       string

	AgeFormat     AgeFormat
	NotReadmitted string
}

// DefaultSchema returns the column layout of the standard dashboard export.
func DefaultSchema() Schema {
	return Schema{
		EncounterID:   "encounter_id",
		Age:           "age",
		Gender:        "gender",
		AdmissionType: "admission_type_id",
		Insulin:       "insulin",
		Race:          "race",
		Stay:          "time_in_hospital",
		Medications:   "num_medications",
		Diagnoses:     "number_diagnoses",
		Outcome:       "readmitted",
		AgeFormat:     AgeFormatBracket,
		NotReadmitted: DefaultNotReadmitted,
	}
}

func (s Schema) columns() []string {
	return []string{
		s.EncounterID, s.Age, s.Gender, s.AdmissionType, s.Insulin,
		s.Race, s.Stay, s.Medications, s.Diagnoses, s.Outcome,
	}
}

// LoadError reports where a source file failed to parse. Line is 1-based and
// counts the header; it is zero for header-level problems.
type LoadError struct {
	Line   int
	Column string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("load dataset: column %q: %v", e.Column, e.Err)
	}
	return fmt.Sprintf("load dataset: line %d column %q: %v", e.Line, e.Column, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadFile opens path and loads it with Load.
func LoadFile(path string, schema Schema) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return Load(f, schema)
}

// Load parses a comma-separated file with a header row. Any missing column or
// unparseable count fails the whole load; there is no partial dataset.
func Load(r io.Reader, schema Schema) (*Dataset, error) {
	if schema.NotReadmitted == "" {
		schema.NotReadmitted = DefaultNotReadmitted
	}
	if schema.AgeFormat == "" {
		schema.AgeFormat = AgeFormatBracket
	}

	br := bufio.NewReaderSize(r, 256*1024)

	// Skip UTF-8 BOM if present
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("load dataset: empty file")
		}
		return nil, fmt.Errorf("load dataset: read header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(h)] = i
	}
	for _, name := range schema.columns() {
		if _, ok := colIdx[name]; !ok {
			return nil, &LoadError{Column: name, Err: ErrMissingColumn}
		}
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load dataset: line %d: %w", line, err)
		}

		rec, err := schema.parseRow(row, colIdx, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return NewDataset(records), nil
}

func (s Schema) parseRow(row []string, colIdx map[string]int, line int) (Record, error) {
	cell := func(name string) string {
		return strings.TrimSpace(row[colIdx[name]])
	}

	rec := Record{
		EncounterID:   cell(s.EncounterID),
		Gender:        cell(s.Gender),
		AdmissionType: cell(s.AdmissionType),
		Insulin:       cell(s.Insulin),
		Race:          cell(s.Race),
		Outcome:       cell(s.Outcome),
	}
	rec.Readmitted = IsReadmitted(rec.Outcome, s.NotReadmitted)

	age := cell(s.Age)
	if s.AgeFormat == AgeFormatYears && age != "" {
		years, err := parseCount(age)
		if err != nil {
			return Record{}, &LoadError{Line: line, Column: s.Age, Err: err}
		}
		age = AgeBracket(years)
	}
	rec.Age = age

	counts := []struct {
		name string
		dst  *NullInt
	}{
		{s.Stay, &rec.Stay},
		{s.Medications, &rec.Medications},
		{s.Diagnoses, &rec.Diagnoses},
	}
	for _, c := range counts {
		raw := cell(c.name)
		if raw == "" {
			continue
		}
		n, err := parseCount(raw)
		if err != nil {
			return Record{}, &LoadError{Line: line, Column: c.name, Err: err}
		}
		*c.dst = Int(n)
	}

	return rec, nil
}

// MaxCount is the largest count column value accepted by the loader.
const MaxCount = math.MaxInt32

// parseCount accepts non-negative integers up to MaxCount, including integral
// floats such as "3.0" written by some exporters.
func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
		}
		if f > MaxCount || f < -MaxCount {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidNumber, s)
		}
		n = int(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidNumber, s)
	}
	if n > MaxCount {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidNumber, s)
	}
	return n, nil
}

// AgeBracket maps an age in years to its decade label, e.g. 57 -> "[50-60)".
// Ages of 90 and above share the top bracket "[90-100)".
func AgeBracket(years int) string {
	if years < 0 {
		years = 0
	}
	lo := years / 10 * 10
	if lo > 90 {
		lo = 90
	}
	return fmt.Sprintf("[%d-%d)", lo, lo+10)
}
