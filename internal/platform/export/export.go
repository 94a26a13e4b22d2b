// Package export writes filtered encounter listings as downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/readmission/dashboard/internal/domain/readmission"
)

// Formats supported by Write.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// ContentType returns the MIME type of a format.
func ContentType(format string) string {
	switch format {
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv"
	}
}

// WriteCSV writes the listing with a header row. Absent counts are empty cells.
func WriteCSV(w io.Writer, listing readmission.Listing) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(listing.Header()); err != nil {
		return fmt.Errorf("export csv: write header: %w", err)
	}
	for _, row := range listing.Rows {
		if err := cw.Write(listing.Strings(row)); err != nil {
			return fmt.Errorf("export csv: write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export csv: flush: %w", err)
	}
	return nil
}

// EncounterParquet is the Parquet row layout. Parquet files always carry
// every column, whatever listing columns were requested.
type EncounterParquet struct {
	EncounterID   string `parquet:"encounter_id"`
	Age           string `parquet:"age"`
	Gender        string `parquet:"gender"`
	AdmissionType string `parquet:"admission_type"`
	Insulin       string `parquet:"insulin"`
	Race          string `parquet:"race"`
	Stay          *int64 `parquet:"time_in_hospital,optional"`
	Medications   *int64 `parquet:"num_medications,optional"`
	Diagnoses     *int64 `parquet:"number_diagnoses,optional"`
	Readmitted    string `parquet:"readmitted"`
}

func toParquet(r readmission.Record) EncounterParquet {
	return EncounterParquet{
		EncounterID:   r.EncounterID,
		Age:           r.Age,
		Gender:        r.Gender,
		AdmissionType: r.AdmissionType,
		Insulin:       r.Insulin,
		Race:          r.Race,
		Stay:          int64Ptr(r.Stay),
		Medications:   int64Ptr(r.Medications),
		Diagnoses:     int64Ptr(r.Diagnoses),
		Readmitted:    r.Outcome,
	}
}

func int64Ptr(n readmission.NullInt) *int64 {
	if !n.Valid {
		return nil
	}
	v := int64(n.Int)
	return &v
}

// WriteParquet writes every record of the view as one Snappy-compressed row group.
func WriteParquet(w io.Writer, view readmission.FilteredView) error {
	records := view.Records()
	rows := make([]EncounterParquet, len(records))
	for i, r := range records {
		rows[i] = toParquet(r)
	}

	pw := parquet.NewGenericWriter[EncounterParquet](w, parquet.Compression(&parquet.Snappy))
	if _, err := pw.Write(rows); err != nil {
		pw.Close()
		return fmt.Errorf("export parquet: write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("export parquet: close writer: %w", err)
	}
	return nil
}
