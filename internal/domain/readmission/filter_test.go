package readmission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(v FilteredView) []string {
	out := []string{}
	for _, r := range v.Records() {
		out = append(out, r.EncounterID)
	}
	return out
}

func TestApply(t *testing.T) {
	ds := sampleDataset()

	t.Run("no criteria keeps every record in order", func(t *testing.T) {
		v := Apply(ds, FilterCriteria{})
		assert.Equal(t, []string{"1001", "1002", "1003", "1004", "1005", "1006", "1007", "1008"}, ids(v))
	})

	t.Run("categorical equality", func(t *testing.T) {
		v := Apply(ds, FilterCriteria{}.With(FieldAge, "[40-50)"))
		assert.Equal(t, []string{"1001", "1002", "1007"}, ids(v))

		v = Apply(ds, FilterCriteria{}.With(FieldGender, "Male"))
		assert.Equal(t, []string{"1002", "1004"}, ids(v))

		v = Apply(ds, FilterCriteria{}.With(FieldInsulin, "Steady"))
		assert.Equal(t, []string{"1005"}, ids(v))

		v = Apply(ds, FilterCriteria{}.With(FieldRace, "AfricanAmerican"))
		assert.Equal(t, []string{"1007"}, ids(v))
	})

	t.Run("criteria combine with AND", func(t *testing.T) {
		c := FilterCriteria{}.With(FieldAge, "[40-50)").With(FieldAdmissionType, "1")
		assert.Equal(t, []string{"1001", "1002"}, ids(Apply(ds, c)))
	})

	t.Run("empty and all literals are unconstrained", func(t *testing.T) {
		c := FilterCriteria{Age: strPtr(""), Gender: strPtr("all")}
		assert.Equal(t, ds.Len(), Apply(ds, c).Len())
	})

	t.Run("stay range is inclusive", func(t *testing.T) {
		v := Apply(ds, FilterCriteria{}.WithStay(3, 5))
		assert.Equal(t, []string{"1002", "1003", "1004", "1007"}, ids(v))
	})

	t.Run("reversed stay range is swapped", func(t *testing.T) {
		assert.Equal(t, ids(Apply(ds, FilterCriteria{}.WithStay(3, 5))), ids(Apply(ds, FilterCriteria{}.WithStay(5, 3))))
	})

	t.Run("unknown literal yields an empty view", func(t *testing.T) {
		v := Apply(ds, FilterCriteria{}.With(FieldAge, "[50-60)"))
		assert.True(t, v.Empty())
		assert.Equal(t, 0, v.Len())
	})

	t.Run("stay range excludes records without a stay", func(t *testing.T) {
		r := rec("x", "[40-50)", "1", "NO", 0, 1, 1)
		r.Stay = NullInt{}
		small := NewDataset([]Record{r, rec("y", "[40-50)", "1", "NO", 2, 1, 1)})

		assert.Equal(t, 2, Apply(small, FilterCriteria{}).Len())
		assert.Equal(t, []string{"y"}, ids(Apply(small, FilterCriteria{}.WithStay(0, 10))))
	})
}

func TestApply_ScenarioC(t *testing.T) {
	ds := NewDataset([]Record{
		rec("a", "[40-50)", "1", "NO", 1, 10, 5),
		rec("b", "[40-50)", "1", "NO", 3, 10, 5),
		rec("c", "[40-50)", "1", "<30", 3, 12, 5),
		rec("d", "[40-50)", "1", "NO", 5, 10, 5),
	})

	v := Apply(ds, FilterCriteria{}.WithStay(3, 3))
	require.Equal(t, []string{"b", "c"}, ids(v))

	kpis := Summarize(v)
	require.True(t, kpis.MeanStay.Valid)
	assert.Equal(t, 3.0, kpis.MeanStay.Value)
	assert.Equal(t, "3.00", kpis.MeanStay.String())
}

func TestApply_Properties(t *testing.T) {
	ds := sampleDataset()
	criteria := []FilterCriteria{
		{},
		FilterCriteria{}.With(FieldAge, "[60-70)"),
		FilterCriteria{}.With(FieldAdmissionType, "1").WithStay(1, 3),
		FilterCriteria{}.With(FieldGender, "Male").With(FieldInsulin, "No"),
		FilterCriteria{}.With(FieldRace, "Nobody"),
		FilterCriteria{}.WithStay(6, 2),
	}

	all := make(map[string]Record)
	for _, r := range ds.Records() {
		all[r.EncounterID] = r
	}

	for _, c := range criteria {
		v := Apply(ds, c)

		// subset: every output record exists unchanged in the dataset
		for _, r := range v.Records() {
			orig, ok := all[r.EncounterID]
			require.True(t, ok)
			assert.Equal(t, orig, r)
		}

		// idempotent
		assert.Equal(t, ids(v), ids(v.Apply(c)))

		// adding a constraint never widens the view
		for _, f := range CategoricalFields {
			if _, constrained := c.Literal(f); constrained {
				continue
			}
			for _, value := range ds.Categories(f) {
				narrowed := Apply(ds, c.With(f, value))
				assert.LessOrEqual(t, narrowed.Len(), v.Len())
			}
		}
		if c.Stay == nil {
			assert.LessOrEqual(t, Apply(ds, c.WithStay(2, 4)).Len(), v.Len())
		}
	}
}

func TestApply_DoesNotMutateDataset(t *testing.T) {
	ds := sampleDataset()
	before := ds.Records()

	v := Apply(ds, FilterCriteria{}.With(FieldAge, "[40-50)"))
	records := v.Records()
	records[0].Outcome = "changed"

	assert.Equal(t, before, ds.Records())
	assert.Equal(t, "NO", Apply(ds, FilterCriteria{}).Records()[0].Outcome)
}

func TestDataset_Validate(t *testing.T) {
	ds := sampleDataset()

	assert.NoError(t, ds.Validate(FilterCriteria{}))
	assert.NoError(t, ds.Validate(FilterCriteria{}.With(FieldAge, "[40-50)").WithStay(1, 7)))

	err := ds.Validate(FilterCriteria{}.With(FieldAge, "[50-60)").WithStay(0, 9))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)

	err = ds.Validate(FilterCriteria{}.WithStay(5, 3))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "exceeds upper bound")
}
