package readmission

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Dataset is the immutable, ordered collection of records loaded at startup.
// It is never modified after construction and may be shared freely between
// goroutines.
type Dataset struct {
	records    []Record
	stay       StayRange
	hasStay    bool
	categories map[Field][]string
}

// NewDataset builds a Dataset from records. The slice is copied.
func NewDataset(records []Record) *Dataset {
	ds := &Dataset{
		records:    append([]Record(nil), records...),
		categories: make(map[Field][]string, len(CategoricalFields)),
	}

	seen := make(map[Field]map[string]struct{}, len(CategoricalFields))
	for _, f := range CategoricalFields {
		seen[f] = make(map[string]struct{})
	}

	for i := range ds.records {
		r := &ds.records[i]
		for _, f := range CategoricalFields {
			if v := r.Category(f); v != "" {
				seen[f][v] = struct{}{}
			}
		}
		if !r.Stay.Valid {
			continue
		}
		if !ds.hasStay {
			ds.stay = StayRange{Min: r.Stay.Int, Max: r.Stay.Int}
			ds.hasStay = true
			continue
		}
		if r.Stay.Int < ds.stay.Min {
			ds.stay.Min = r.Stay.Int
		}
		if r.Stay.Int > ds.stay.Max {
			ds.stay.Max = r.Stay.Int
		}
	}

	for f, values := range seen {
		list := make([]string, 0, len(values))
		for v := range values {
			list = append(list, v)
		}
		sort.Slice(list, func(i, j int) bool { return naturalLess(list[i], list[j]) })
		ds.categories[f] = list
	}

	return ds
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns a copy of all records in load order.
func (d *Dataset) Records() []Record {
	return append([]Record(nil), d.records...)
}

// View returns the unfiltered view of the dataset.
func (d *Dataset) View() FilteredView {
	return FilteredView{records: d.records}
}

// StayBounds returns the minimum and maximum length of stay in the dataset.
// The second result is false when no record has a stay value.
func (d *Dataset) StayBounds() (StayRange, bool) {
	return d.stay, d.hasStay
}

// DefaultStay is the range a one-sided stay filter is completed from: the
// dataset's stay bounds, or an open range when no record has a stay value.
func (d *Dataset) DefaultStay() StayRange {
	if rng, ok := d.StayBounds(); ok {
		return rng
	}
	return StayRange{Min: 0, Max: math.MaxInt}
}

// Categories returns the sorted distinct non-empty values of f.
func (d *Dataset) Categories(f Field) []string {
	return append([]string(nil), d.categories[f]...)
}

// ValidationError lists the criteria a dataset cannot satisfy.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid filter criteria: " + strings.Join(e.Problems, "; ")
}

// Validate rejects literals outside a field's domain and stay ranges that are
// reversed or fall outside the dataset's bounds. Apply does not require it.
func (d *Dataset) Validate(c FilterCriteria) error {
	var problems []string
	for _, f := range CategoricalFields {
		v, ok := c.Literal(f)
		if !ok {
			continue
		}
		if !containsString(d.categories[f], v) {
			problems = append(problems, fmt.Sprintf("%s: unknown value %q", f, v))
		}
	}
	if c.Stay != nil {
		if c.Stay.Min > c.Stay.Max {
			problems = append(problems, fmt.Sprintf("stay: lower bound %d exceeds upper bound %d", c.Stay.Min, c.Stay.Max))
		}
		if d.hasStay && (c.Stay.Min < d.stay.Min || c.Stay.Max > d.stay.Max) {
			problems = append(problems, fmt.Sprintf("stay: range [%d, %d] outside dataset bounds [%d, %d]",
				c.Stay.Min, c.Stay.Max, d.stay.Min, d.stay.Max))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
