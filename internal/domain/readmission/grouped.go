package readmission

import (
	"sort"
	"strconv"
)

type groupCounter struct {
	records    int
	readmitted int
}

// GroupByAdmissionType returns the readmission rate per admission type.
// Records with an empty admission type are left out.
func GroupByAdmissionType(v FilteredView) GroupedRate {
	return groupBy(v, []string{string(FieldAdmissionType)}, func(r *Record) (GroupKey, bool) {
		if r.AdmissionType == "" {
			return GroupKey{}, false
		}
		return GroupKey{Primary: r.AdmissionType}, true
	})
}

// GroupByAgeAndDiagnoses returns the readmission rate per (age bracket,
// diagnosis count) pair. Records missing either value are left out.
func GroupByAgeAndDiagnoses(v FilteredView) GroupedRate {
	return groupBy(v, []string{string(FieldAge), "number_diagnoses"}, func(r *Record) (GroupKey, bool) {
		if r.Age == "" || !r.Diagnoses.Valid {
			return GroupKey{}, false
		}
		return GroupKey{Primary: r.Age, Secondary: strconv.Itoa(r.Diagnoses.Int)}, true
	})
}

func groupBy(v FilteredView, dims []string, keyOf func(*Record) (GroupKey, bool)) GroupedRate {
	counters := make(map[GroupKey]*groupCounter)
	for i := range v.records {
		r := &v.records[i]
		key, ok := keyOf(r)
		if !ok {
			continue
		}
		gc := counters[key]
		if gc == nil {
			gc = &groupCounter{}
			counters[key] = gc
		}
		gc.records++
		if r.Readmitted {
			gc.readmitted++
		}
	}

	groups := make([]GroupRate, 0, len(counters))
	for key, gc := range counters {
		groups = append(groups, GroupRate{
			Key:        key,
			Records:    gc.records,
			Readmitted: gc.readmitted,
			Rate:       rate(gc.readmitted, gc.records),
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a.Primary != b.Primary {
			return naturalLess(a.Primary, b.Primary)
		}
		return naturalLess(a.Secondary, b.Secondary)
	})

	return GroupedRate{Dimensions: dims, Groups: groups}
}

// naturalLess orders strings by their first embedded integer when the text
// before it matches, so "2" < "10" and "[5-10)" < "[10-20)".
func naturalLess(a, b string) bool {
	pa, na, oka := leadingNumber(a)
	pb, nb, okb := leadingNumber(b)
	if oka && okb && pa == pb && na != nb {
		return na < nb
	}
	return a < b
}

func leadingNumber(s string) (prefix string, n int, ok bool) {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return s, 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return s, 0, false
	}
	return s[:start], n, true
}
