package readmission

import (
	"encoding/json"
	"strconv"
)

// NotApplicable is shown in place of a KPI computed over an empty view.
const NotApplicable = "N/A"

// DefaultNotReadmitted is the canonical "not readmitted" outcome literal.
const DefaultNotReadmitted = "NO"

// Field identifies a filterable categorical attribute of a Record.
type Field string

const (
	FieldAge           Field = "age"
	FieldAdmissionType Field = "admission_type"
	FieldInsulin       Field = "insulin"
	FieldGender        Field = "gender"
	FieldRace          Field = "race"
)

// CategoricalFields lists the fields that accept an equality filter, in
// the order they are presented to users.
var CategoricalFields = []Field{FieldAge, FieldAdmissionType, FieldInsulin, FieldGender, FieldRace}

// NullInt is a count that may be absent in the source file.
type NullInt struct {
	Int   int
	Valid bool
}

// Int returns a present NullInt.
func Int(n int) NullInt { return NullInt{Int: n, Valid: true} }

func (n NullInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(n.Int)), nil
}

func (n *NullInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = NullInt{}
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Int(v)
	return nil
}

// Value returns the count or nil when absent.
func (n NullInt) Value() interface{} {
	if !n.Valid {
		return nil
	}
	return n.Int
}

// Record is one hospital encounter.
type Record struct {
	EncounterID   string  `json:"encounter_id"`
	Age           string  `json:"age"`
	Gender        string  `json:"gender"`
	AdmissionType string  `json:"admission_type"`
	Insulin       string  `json:"insulin"`
	Race          string  `json:"race"`
	Stay          NullInt `json:"time_in_hospital"`
	Medications   NullInt `json:"num_medications"`
	Diagnoses     NullInt `json:"number_diagnoses"`
	Outcome       string  `json:"readmitted"`
	Readmitted    bool    `json:"-"`
}

// Category returns the value of a categorical field.
func (r *Record) Category(f Field) string {
	switch f {
	case FieldAge:
		return r.Age
	case FieldAdmissionType:
		return r.AdmissionType
	case FieldInsulin:
		return r.Insulin
	case FieldGender:
		return r.Gender
	case FieldRace:
		return r.Race
	}
	return ""
}

// IsReadmitted reports whether outcome counts as a readmission. Any value
// other than the not-readmitted literal does, whatever its encoding.
func IsReadmitted(outcome, notReadmitted string) bool {
	return outcome != notReadmitted
}

// StayRange is an inclusive length-of-stay interval in days.
type StayRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Normalize returns the range with its bounds in ascending order.
func (r StayRange) Normalize() StayRange {
	if r.Min > r.Max {
		return StayRange{Min: r.Max, Max: r.Min}
	}
	return r
}

// Contains reports whether days lies inside the range.
func (r StayRange) Contains(days int) bool {
	return days >= r.Min && days <= r.Max
}

// FilterCriteria is the set of optional constraints applied to a Dataset.
// A nil, empty or "all" literal leaves the field unconstrained.
type FilterCriteria struct {
	Age           *string    `json:"age,omitempty"`
	AdmissionType *string    `json:"admission_type,omitempty"`
	Insulin       *string    `json:"insulin,omitempty"`
	Gender        *string    `json:"gender,omitempty"`
	Race          *string    `json:"race,omitempty"`
	Stay          *StayRange `json:"stay,omitempty"`
}

// Literal returns the constrained literal for f and whether f is constrained.
func (c FilterCriteria) Literal(f Field) (string, bool) {
	var p *string
	switch f {
	case FieldAge:
		p = c.Age
	case FieldAdmissionType:
		p = c.AdmissionType
	case FieldInsulin:
		p = c.Insulin
	case FieldGender:
		p = c.Gender
	case FieldRace:
		p = c.Race
	}
	if p == nil || *p == "" || *p == "all" {
		return "", false
	}
	return *p, true
}

// With returns a copy of c with f constrained to value.
func (c FilterCriteria) With(f Field, value string) FilterCriteria {
	v := value
	switch f {
	case FieldAge:
		c.Age = &v
	case FieldAdmissionType:
		c.AdmissionType = &v
	case FieldInsulin:
		c.Insulin = &v
	case FieldGender:
		c.Gender = &v
	case FieldRace:
		c.Race = &v
	}
	return c
}

// WithStay returns a copy of c with the stay range constrained.
func (c FilterCriteria) WithStay(min, max int) FilterCriteria {
	c.Stay = &StayRange{Min: min, Max: max}
	return c
}

// Metric is a KPI value that is undefined over an empty view.
type Metric struct {
	Value float64
	Valid bool
}

func (m Metric) String() string {
	if !m.Valid {
		return NotApplicable
	}
	return strconv.FormatFloat(m.Value, 'f', 2, 64)
}

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return json.Marshal(NotApplicable)
	}
	return json.Marshal(m.Value)
}

// KPISummary holds the three headline statistics of a FilteredView.
type KPISummary struct {
	ReadmissionRate Metric `json:"readmission_rate"`
	MeanStay        Metric `json:"mean_stay"`
	MeanMedications Metric `json:"mean_medications"`
}

// GroupKey identifies a group. Secondary is empty for single-value keys.
type GroupKey struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// GroupRate is the readmission rate over the records sharing a key.
type GroupRate struct {
	Key        GroupKey `json:"key"`
	Records    int      `json:"records"`
	Readmitted int      `json:"readmitted"`
	Rate       float64  `json:"rate"`
}

// GroupedRate is a readmission rate per distinct key, sorted by key.
type GroupedRate struct {
	Dimensions []string    `json:"dimensions"`
	Groups     []GroupRate `json:"groups"`
}

// Rate looks up the rate for a key given as one or two values.
func (g GroupedRate) Rate(key ...string) (float64, bool) {
	want := GroupKey{}
	if len(key) > 0 {
		want.Primary = key[0]
	}
	if len(key) > 1 {
		want.Secondary = key[1]
	}
	for _, gr := range g.Groups {
		if gr.Key == want {
			return gr.Rate, true
		}
	}
	return 0, false
}

// Records returns the number of records covered by all groups.
func (g GroupedRate) Records() int {
	n := 0
	for _, gr := range g.Groups {
		n += gr.Records
	}
	return n
}
