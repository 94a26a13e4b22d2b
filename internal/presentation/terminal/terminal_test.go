package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readmission/dashboard/internal/domain/readmission"
)

const testCSV = `encounter_id,age,gender,admission_type_id,insulin,race,time_in_hospital,num_medications,number_diagnoses,readmitted
1,[40-50),Female,1,No,Caucasian,3,12,5,NO
2,[40-50),Male,2,Up,Asian,2,8,5,<30
3,[60-70),Female,1,Steady,Caucasian,6,20,9,>30
4,[60-70),Male,10,No,Caucasian,4,15,9,NO
5,[60-70),Male,10,No,Caucasian,1,4,3,NO
`

func dashboard(t *testing.T, c readmission.FilterCriteria) *readmission.Dashboard {
	t.Helper()
	ds, err := readmission.Load(strings.NewReader(testCSV), readmission.DefaultSchema())
	require.NoError(t, err)
	d, err := readmission.NewService(ds, zerolog.Nop()).Dashboard(c)
	require.NoError(t, err)
	return d
}

func TestRender(t *testing.T) {
	d := dashboard(t, readmission.FilterCriteria{})

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, d, DefaultOptions()))
	out := buf.String()

	assert.Contains(t, out, "5 of 5 encounters match")
	assert.Contains(t, out, "40.00%")
	assert.Contains(t, out, "3.20")
	assert.Contains(t, out, "11.80")
	assert.Contains(t, out, "[high]")
	assert.Contains(t, out, "(1/2)")
	assert.Contains(t, out, "age \\ diagnoses")
	assert.Contains(t, out, "encounter_id")
	assert.Contains(t, out, "page 1 of 1 (5 rows)")
}

func TestRender_Paging(t *testing.T) {
	d := dashboard(t, readmission.FilterCriteria{})

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, d, Options{Page: 2, PageSize: 2}))
	out := buf.String()

	assert.Contains(t, out, "page 2 of 3 (5 rows)")
	assert.Contains(t, out, "| 3 ")
	assert.NotContains(t, out, "| 1 ")
}

func TestRender_PageBeyondEnd(t *testing.T) {
	d := dashboard(t, readmission.FilterCriteria{})

	var buf bytes.Buffer
	require.NotPanics(t, func() {
		require.NoError(t, Render(&buf, d, Options{Page: 4611686018427387904, PageSize: 8}))
	})
	assert.Contains(t, buf.String(), "(5 rows)")
	assert.NotContains(t, buf.String(), "| 1 ")
}

func TestRender_Empty(t *testing.T) {
	d := dashboard(t, readmission.FilterCriteria{}.With(readmission.FieldAge, "[90-100)"))

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, d, DefaultOptions()))
	out := buf.String()

	assert.Contains(t, out, "0 of 5 encounters match")
	assert.Contains(t, out, readmission.NotApplicable)
	assert.Contains(t, out, "no data")
	assert.Contains(t, out, "page 1 of 1 (0 rows)")
}

func TestBlocks(t *testing.T) {
	assert.Equal(t, 0, blocks(0, 100, 40))
	assert.Equal(t, 20, blocks(50, 100, 40))
	assert.Equal(t, 40, blocks(100, 100, 40))
	assert.Equal(t, 40, blocks(150, 100, 40))
	assert.Equal(t, 0, blocks(10, 0, 40))
}

func TestSortNumeric(t *testing.T) {
	v := []string{"10", "9", "3", "12"}
	sortNumeric(v)
	assert.Equal(t, []string{"3", "9", "10", "12"}, v)
}
