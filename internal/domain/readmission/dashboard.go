package readmission

// GaugeThresholds are the band boundaries of the readmission gauge, in percent.
type GaugeThresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// DefaultGaugeThresholds colour rates below 20 low, below 40 medium, and the
// rest high.
var DefaultGaugeThresholds = GaugeThresholds{Medium: 20, High: 40}

// Gauge bands.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
	BandNone   = "n/a"
)

// Band classifies a rate.
func (t GaugeThresholds) Band(rate float64) string {
	switch {
	case rate < t.Medium:
		return BandLow
	case rate < t.High:
		return BandMedium
	default:
		return BandHigh
	}
}

// Gauge is the readmission-rate dial on a 0-100 scale.
type Gauge struct {
	Value      Metric          `json:"value"`
	Min        float64         `json:"min"`
	Max        float64         `json:"max"`
	Thresholds GaugeThresholds `json:"thresholds"`
	Band       string          `json:"band"`
}

// NewGauge builds the gauge for a readmission-rate metric.
func NewGauge(rate Metric) Gauge {
	g := Gauge{
		Value:      rate,
		Min:        0,
		Max:        100,
		Thresholds: DefaultGaugeThresholds,
		Band:       BandNone,
	}
	if rate.Valid {
		g.Band = g.Thresholds.Band(rate.Value)
	}
	return g
}

// ScatterPoint is one encounter in the medications-versus-stay plot.
// Diagnoses sizes the marker; the identity fields are tooltip content.
type ScatterPoint struct {
	Medications int    `json:"num_medications"`
	Stay        int    `json:"time_in_hospital"`
	Outcome     string `json:"readmitted"`
	Diagnoses   int    `json:"number_diagnoses"`
	EncounterID string `json:"encounter_id"`
	Age         string `json:"age"`
	Gender      string `json:"gender"`
}

// Scatter returns a point per record that has both a medication count and a
// stay. A missing diagnosis count gives a zero-size marker.
func Scatter(v FilteredView) []ScatterPoint {
	points := make([]ScatterPoint, 0, len(v.records))
	for i := range v.records {
		r := &v.records[i]
		if !r.Medications.Valid || !r.Stay.Valid {
			continue
		}
		points = append(points, ScatterPoint{
			Medications: r.Medications.Int,
			Stay:        r.Stay.Int,
			Outcome:     r.Outcome,
			Diagnoses:   r.Diagnoses.Int,
			EncounterID: r.EncounterID,
			Age:         r.Age,
			Gender:      r.Gender,
		})
	}
	return points
}

// Dashboard is everything the presentation layer needs for one set of
// filter criteria.
type Dashboard struct {
	Criteria        FilterCriteria `json:"criteria"`
	Total           int            `json:"total"`
	Matched         int            `json:"matched"`
	KPIs            KPISummary     `json:"kpis"`
	Gauge           Gauge          `json:"gauge"`
	Scatter         []ScatterPoint `json:"scatter"`
	ByAdmissionType GroupedRate    `json:"by_admission_type"`
	ByAgeDiagnoses  GroupedRate    `json:"by_age_diagnoses"`
	Listing         Listing        `json:"listing"`
}

// Recompute runs one full pass over ds for c: filter, KPIs, chart inputs and
// the row listing.
func Recompute(ds *Dataset, c FilterCriteria, columns []Column) (*Dashboard, error) {
	view := Apply(ds, c)

	listing, err := Project(view, columns)
	if err != nil {
		return nil, err
	}

	kpis := Summarize(view)
	return &Dashboard{
		Criteria:        c,
		Total:           ds.Len(),
		Matched:         view.Len(),
		KPIs:            kpis,
		Gauge:           NewGauge(kpis.ReadmissionRate),
		Scatter:         Scatter(view),
		ByAdmissionType: GroupByAdmissionType(view),
		ByAgeDiagnoses:  GroupByAgeAndDiagnoses(view),
		Listing:         listing,
	}, nil
}
