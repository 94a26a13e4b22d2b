package readmission

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Summarize computes the KPIs of v. An empty view yields NotApplicable for
// every field.
func Summarize(v FilteredView) KPISummary {
	if v.Empty() {
		return KPISummary{}
	}

	readmitted := 0
	stays := make([]float64, 0, len(v.records))
	meds := make([]float64, 0, len(v.records))
	for i := range v.records {
		r := &v.records[i]
		if r.Readmitted {
			readmitted++
		}
		if r.Stay.Valid {
			stays = append(stays, float64(r.Stay.Int))
		}
		if r.Medications.Valid {
			meds = append(meds, float64(r.Medications.Int))
		}
	}

	return KPISummary{
		ReadmissionRate: Metric{Value: rate(readmitted, len(v.records)), Valid: true},
		MeanStay:        mean(stays),
		MeanMedications: mean(meds),
	}
}

// rate returns 100*part/total rounded to two decimals. total must be positive.
func rate(part, total int) float64 {
	return round2(100 * float64(part) / float64(total))
}

// mean skips absent values; with none present the metric is undefined.
func mean(values []float64) Metric {
	if len(values) == 0 {
		return Metric{}
	}
	return Metric{Value: round2(stat.Mean(values, nil)), Valid: true}
}

// round2 rounds half away from zero to two decimal places.
func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
