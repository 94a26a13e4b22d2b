// Package plotly renders dashboards as Plotly figure JSON for the browser.
package plotly

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/readmission/dashboard/internal/domain/readmission"
)

// Figure is a Plotly figure: traces plus layout.
type Figure struct {
	Data   []Trace                `json:"data"`
	Layout map[string]interface{} `json:"layout"`
}

// Trace is a single Plotly trace. Plotly's schema is open-ended, so traces
// are built as maps.
type Trace map[string]interface{}

// Figures holds the four charts of the dashboard.
type Figures struct {
	Gauge   Figure `json:"gauge"`
	Scatter Figure `json:"scatter"`
	Bar     Figure `json:"bar"`
	Heatmap Figure `json:"heatmap"`
}

// Band colours of the gauge steps.
const (
	colorLow    = "green"
	colorMedium = "yellow"
	colorHigh   = "red"
)

// Build converts d into Plotly figures. An empty dashboard yields figures
// with no traces.
func Build(d *readmission.Dashboard) Figures {
	if d.Matched == 0 {
		return Figures{
			Gauge:   empty(),
			Scatter: empty(),
			Bar:     empty(),
			Heatmap: empty(),
		}
	}
	return Figures{
		Gauge:   Gauge(d.Gauge),
		Scatter: Scatter(d.Scatter),
		Bar:     Bar(d.ByAdmissionType),
		Heatmap: Heatmap(d.ByAgeDiagnoses),
	}
}

func empty() Figure {
	return Figure{Data: []Trace{}, Layout: map[string]interface{}{}}
}

func title(text string) map[string]interface{} {
	return map[string]interface{}{"text": text}
}

// Gauge renders the readmission-rate indicator with its three coloured steps.
func Gauge(g readmission.Gauge) Figure {
	t := g.Thresholds
	var value interface{}
	if g.Value.Valid {
		value = g.Value.Value
	}
	return Figure{
		Data: []Trace{{
			"type":  "indicator",
			"mode":  "gauge+number",
			"value": value,
			"title": title("Readmission rate (%)"),
			"gauge": map[string]interface{}{
				"axis": map[string]interface{}{"range": []float64{g.Min, g.Max}},
				"bar":  map[string]interface{}{"color": colorHigh},
				"steps": []map[string]interface{}{
					{"range": []float64{g.Min, t.Medium}, "color": colorLow},
					{"range": []float64{t.Medium, t.High}, "color": colorMedium},
					{"range": []float64{t.High, g.Max}, "color": colorHigh},
				},
			},
		}},
		Layout: map[string]interface{}{},
	}
}

// Scatter plots medications against stay with one trace per outcome, so the
// legend colours points by readmission class. Marker size follows the
// diagnosis count.
func Scatter(points []readmission.ScatterPoint) Figure {
	byOutcome := make(map[string][]readmission.ScatterPoint)
	for _, p := range points {
		byOutcome[p.Outcome] = append(byOutcome[p.Outcome], p)
	}
	outcomes := make([]string, 0, len(byOutcome))
	for o := range byOutcome {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)

	traces := make([]Trace, 0, len(outcomes))
	for _, o := range outcomes {
		pts := byOutcome[o]
		x := make([]int, len(pts))
		y := make([]int, len(pts))
		size := make([]int, len(pts))
		custom := make([][]string, len(pts))
		for i, p := range pts {
			x[i], y[i], size[i] = p.Medications, p.Stay, p.Diagnoses
			custom[i] = []string{p.EncounterID, p.Age, p.Gender}
		}
		traces = append(traces, Trace{
			"type":       "scatter",
			"mode":       "markers",
			"name":       o,
			"x":          x,
			"y":          y,
			"customdata": custom,
			"marker": map[string]interface{}{
				"size":     size,
				"sizemode": "area",
				"sizeref":  0.1,
			},
			"hovertemplate": "encounter %{customdata[0]}<br>age %{customdata[1]}<br>gender %{customdata[2]}" +
				"<br>medications %{x}<br>stay %{y}<extra>" + o + "</extra>",
		})
	}

	return Figure{
		Data: traces,
		Layout: map[string]interface{}{
			"title":  title("Medications vs time in hospital"),
			"xaxis":  map[string]interface{}{"title": title("num_medications")},
			"yaxis":  map[string]interface{}{"title": title("time_in_hospital")},
			"legend": map[string]interface{}{"title": title("readmitted")},
		},
	}
}

// Bar plots the readmission rate per admission type.
func Bar(g readmission.GroupedRate) Figure {
	x := make([]string, len(g.Groups))
	y := make([]float64, len(g.Groups))
	text := make([]string, len(g.Groups))
	for i, gr := range g.Groups {
		x[i] = gr.Key.Primary
		y[i] = gr.Rate
		text[i] = fmt.Sprintf("%d/%d", gr.Readmitted, gr.Records)
	}
	return Figure{
		Data: []Trace{{
			"type":   "bar",
			"x":      x,
			"y":      y,
			"text":   text,
			"marker": map[string]interface{}{"color": y, "colorscale": "Reds"},
		}},
		Layout: map[string]interface{}{
			"title": title("Readmission rate by admission type"),
			"xaxis": map[string]interface{}{"title": title("admission_type"), "type": "category"},
			"yaxis": map[string]interface{}{"title": title("Rate (%)"), "range": []float64{0, 100}},
		},
	}
}

// Heatmap plots the readmission rate per age bracket and diagnosis count.
// Cells without records are null.
func Heatmap(g readmission.GroupedRate) Figure {
	var ages, diags []string
	seenAge := make(map[string]int)
	seenDiag := make(map[string]int)
	for _, gr := range g.Groups {
		if _, ok := seenAge[gr.Key.Primary]; !ok {
			seenAge[gr.Key.Primary] = len(ages)
			ages = append(ages, gr.Key.Primary)
		}
		if _, ok := seenDiag[gr.Key.Secondary]; !ok {
			diags = append(diags, gr.Key.Secondary)
			seenDiag[gr.Key.Secondary] = 0
		}
	}
	sort.Slice(diags, func(i, j int) bool {
		a, _ := strconv.Atoi(diags[i])
		b, _ := strconv.Atoi(diags[j])
		return a < b
	})
	for i, d := range diags {
		seenDiag[d] = i
	}

	z := make([][]interface{}, len(diags))
	for i := range z {
		z[i] = make([]interface{}, len(ages))
	}
	for _, gr := range g.Groups {
		z[seenDiag[gr.Key.Secondary]][seenAge[gr.Key.Primary]] = gr.Rate
	}

	return Figure{
		Data: []Trace{{
			"type":       "heatmap",
			"x":          ages,
			"y":          diags,
			"z":          z,
			"zmin":       0,
			"zmax":       100,
			"colorscale": "Reds",
			"colorbar":   map[string]interface{}{"title": title("Rate (%)")},
		}},
		Layout: map[string]interface{}{
			"title": title("Risk: age vs diagnoses"),
			"xaxis": map[string]interface{}{"title": title("age"), "type": "category"},
			"yaxis": map[string]interface{}{"title": title("number_diagnoses"), "type": "category"},
		},
	}
}
