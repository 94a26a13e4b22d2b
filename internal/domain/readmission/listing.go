package readmission

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownColumn is returned when a listing asks for a column that does not exist.
var ErrUnknownColumn = errors.New("unknown column")

// Column names a projectable record attribute.
type Column string

const (
	ColumnEncounterID   Column = "encounter_id"
	ColumnAge           Column = "age"
	ColumnGender        Column = "gender"
	ColumnAdmissionType Column = "admission_type"
	ColumnInsulin       Column = "insulin"
	ColumnRace          Column = "race"
	ColumnStay          Column = "time_in_hospital"
	ColumnMedications   Column = "num_medications"
	ColumnDiagnoses     Column = "number_diagnoses"
	ColumnOutcome       Column = "readmitted"
)

// AllColumns lists every projectable column.
var AllColumns = []Column{
	ColumnEncounterID, ColumnAge, ColumnGender, ColumnAdmissionType, ColumnInsulin,
	ColumnRace, ColumnStay, ColumnMedications, ColumnDiagnoses, ColumnOutcome,
}

// DefaultColumns are the columns of the patient table.
var DefaultColumns = []Column{
	ColumnEncounterID, ColumnAge, ColumnGender, ColumnStay, ColumnMedications, ColumnOutcome,
}

// ParseColumns parses a comma-separated column list. An empty string yields
// DefaultColumns.
func ParseColumns(s string) ([]Column, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultColumns, nil
	}
	var cols []Column
	for _, part := range strings.Split(s, ",") {
		col := Column(strings.TrimSpace(part))
		if !col.valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, string(col))
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func (c Column) valid() bool {
	for _, known := range AllColumns {
		if c == known {
			return true
		}
	}
	return false
}

// Row is one projected record keyed by column name. Absent counts are nil.
type Row map[string]interface{}

// Listing is a column projection of a view.
type Listing struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Project restricts each record of v to columns, preserving order.
func Project(v FilteredView, columns []Column) (Listing, error) {
	for _, c := range columns {
		if !c.valid() {
			return Listing{}, fmt.Errorf("%w: %q", ErrUnknownColumn, string(c))
		}
	}

	rows := make([]Row, 0, len(v.records))
	for i := range v.records {
		r := &v.records[i]
		row := make(Row, len(columns))
		for _, c := range columns {
			row[string(c)] = r.value(c)
		}
		rows = append(rows, row)
	}
	return Listing{Columns: append([]Column(nil), columns...), Rows: rows}, nil
}

func (r *Record) value(c Column) interface{} {
	switch c {
	case ColumnEncounterID:
		return r.EncounterID
	case ColumnAge:
		return r.Age
	case ColumnGender:
		return r.Gender
	case ColumnAdmissionType:
		return r.AdmissionType
	case ColumnInsulin:
		return r.Insulin
	case ColumnRace:
		return r.Race
	case ColumnStay:
		return r.Stay.Value()
	case ColumnMedications:
		return r.Medications.Value()
	case ColumnDiagnoses:
		return r.Diagnoses.Value()
	case ColumnOutcome:
		return r.Outcome
	}
	return nil
}

// Strings renders row cells in column order, with absent counts as "".
func (l Listing) Strings(row Row) []string {
	out := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		if v := row[string(c)]; v != nil {
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

// Header returns the column names as strings.
func (l Listing) Header() []string {
	out := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		out[i] = string(c)
	}
	return out
}
