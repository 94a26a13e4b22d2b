package readmission

// FilteredView is the ordered subset of a Dataset satisfying a FilterCriteria.
// It may be empty.
type FilteredView struct {
	records []Record
}

// NewView wraps records in a view. The slice is copied.
func NewView(records []Record) FilteredView {
	return FilteredView{records: append([]Record(nil), records...)}
}

// Len returns the number of records in the view.
func (v FilteredView) Len() int { return len(v.records) }

// Empty reports whether the view has no records.
func (v FilteredView) Empty() bool { return len(v.records) == 0 }

// Records returns a copy of the view's records in dataset order.
func (v FilteredView) Records() []Record {
	return append([]Record(nil), v.records...)
}

// Apply narrows the view further by c.
func (v FilteredView) Apply(c FilterCriteria) FilteredView {
	return FilteredView{records: filterRecords(v.records, c)}
}

// Apply returns the records of ds satisfying every constrained field of c.
// Categorical constraints match by equality and the stay constraint by
// inclusive range; a reversed range is swapped. The dataset is not modified.
func Apply(ds *Dataset, c FilterCriteria) FilteredView {
	return ds.View().Apply(c)
}

type predicate func(*Record) bool

func filterRecords(records []Record, c FilterCriteria) []Record {
	preds := compile(c)

	out := make([]Record, 0, len(records))
	for i := range records {
		if matchAll(&records[i], preds) {
			out = append(out, records[i])
		}
	}
	return out
}

func compile(c FilterCriteria) []predicate {
	var preds []predicate
	for _, f := range CategoricalFields {
		lit, ok := c.Literal(f)
		if !ok {
			continue
		}
		field := f
		preds = append(preds, func(r *Record) bool {
			return r.Category(field) == lit
		})
	}
	if c.Stay != nil {
		rng := c.Stay.Normalize()
		preds = append(preds, func(r *Record) bool {
			return r.Stay.Valid && rng.Contains(r.Stay.Int)
		})
	}
	return preds
}

func matchAll(r *Record, preds []predicate) bool {
	for _, p := range preds {
		if !p(r) {
			return false
		}
	}
	return true
}
