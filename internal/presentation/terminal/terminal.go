// Package terminal renders dashboards as styled text for the report command.
package terminal

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/readmission/dashboard/internal/domain/readmission"
	"github.com/readmission/dashboard/pkg/pagination"
)

// Options control what Render draws.
type Options struct {
	Page     int // 1-based page of the listing
	PageSize int
	BarWidth int
}

// DefaultOptions draws the first listing page with the default page size.
func DefaultOptions() Options {
	return Options{Page: 1, PageSize: pagination.DefaultLimit, BarWidth: 40}
}

// Render writes the KPI cards, gauge, admission-type bars, age by diagnoses
// heatmap and one page of the listing to w.
func Render(w io.Writer, d *readmission.Dashboard, opts Options) error {
	if opts.BarWidth <= 0 {
		opts.BarWidth = DefaultOptions().BarWidth
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Readmission risk dashboard"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d of %d encounters match\n\n", d.Matched, d.Total)

	b.WriteString(cards(d.KPIs))
	b.WriteString("\n")
	b.WriteString(gauge(d.Gauge, opts.BarWidth))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Readmission rate by admission type"))
	b.WriteString("\n")
	b.WriteString(bars(d.ByAdmissionType, opts.BarWidth))

	b.WriteString(sectionStyle.Render("Readmission rate (%) by age and diagnoses"))
	b.WriteString("\n")
	heatmap(&b, d.ByAgeDiagnoses)

	b.WriteString(sectionStyle.Render("Patients"))
	b.WriteString("\n")
	listing(&b, d.Listing, pagination.ForPage(opts.Page, opts.PageSize))

	_, err := io.WriteString(w, b.String())
	return err
}

func cards(k readmission.KPISummary) string {
	rate := k.ReadmissionRate.String()
	if k.ReadmissionRate.Valid {
		rate += "%"
	}
	card := func(label, value string) string {
		return cardStyle.Render(cardLabelStyle.Render(label) + "\n" + cardValueStyle.Render(value))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		card("Readmission rate", rate),
		card("Mean stay (days)", k.MeanStay.String()),
		card("Mean medications", k.MeanMedications.String()),
	) + "\n"
}

func gauge(g readmission.Gauge, width int) string {
	style := bandStyle(g.Band)
	if !g.Value.Valid {
		return "Gauge  " + style.Render(strings.Repeat("░", width)+" "+readmission.NotApplicable) + "\n"
	}
	filled := blocks(g.Value.Value, g.Max, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("Gauge  %s %s%% [%s]\n", style.Render(bar), g.Value, g.Band)
}

func bars(g readmission.GroupedRate, width int) string {
	if len(g.Groups) == 0 {
		return mutedStyle.Render("no data") + "\n"
	}
	labelWidth := 0
	for _, gr := range g.Groups {
		if len(gr.Key.Primary) > labelWidth {
			labelWidth = len(gr.Key.Primary)
		}
	}

	var b strings.Builder
	for _, gr := range g.Groups {
		n := blocks(gr.Rate, 100, width)
		fmt.Fprintf(&b, "%-*s %s%s %6.2f%% (%d/%d)\n",
			labelWidth, gr.Key.Primary,
			strings.Repeat("█", n), strings.Repeat(" ", width-n),
			gr.Rate, gr.Readmitted, gr.Records)
	}
	return b.String()
}

// blocks scales value against max to a bar length in [0, width].
func blocks(value, max float64, width int) int {
	if max <= 0 {
		return 0
	}
	n := int(math.Round(value / max * float64(width)))
	if n < 0 {
		return 0
	}
	if n > width {
		return width
	}
	return n
}

func heatmap(w io.Writer, g readmission.GroupedRate) {
	if len(g.Groups) == 0 {
		io.WriteString(w, mutedStyle.Render("no data")+"\n")
		return
	}

	var ages, diags []string
	cells := make(map[readmission.GroupKey]float64, len(g.Groups))
	seenAge := make(map[string]bool)
	seenDiag := make(map[string]bool)
	for _, gr := range g.Groups {
		cells[gr.Key] = gr.Rate
		if !seenAge[gr.Key.Primary] {
			seenAge[gr.Key.Primary] = true
			ages = append(ages, gr.Key.Primary)
		}
		if !seenDiag[gr.Key.Secondary] {
			seenDiag[gr.Key.Secondary] = true
			diags = append(diags, gr.Key.Secondary)
		}
	}
	sortNumeric(diags)

	table := newTable(w)
	table.SetHeader(append([]string{"age \\ diagnoses"}, diags...))
	for _, age := range ages {
		row := []string{age}
		for _, diag := range diags {
			if rate, ok := cells[readmission.GroupKey{Primary: age, Secondary: diag}]; ok {
				row = append(row, strconv.FormatFloat(rate, 'f', 2, 64))
			} else {
				row = append(row, "")
			}
		}
		table.Append(row)
	}
	table.Render()
}

func listing(w io.Writer, l readmission.Listing, p pagination.Params) {
	rows := pagination.Slice(l.Rows, p)

	table := newTable(w)
	table.SetHeader(l.Header())
	for _, row := range rows {
		table.Append(l.Strings(row))
	}
	table.Render()

	fmt.Fprintf(w, "%s\n", mutedStyle.Render(fmt.Sprintf("page %d of %d (%d rows)", p.Page(), p.Pages(len(l.Rows)), len(l.Rows))))
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func sortNumeric(values []string) {
	sort.Slice(values, func(i, j int) bool { return numericLess(values[i], values[j]) })
}

func numericLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return na < nb
}
