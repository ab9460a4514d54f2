// Package report renders pipeline results for people (aligned Markdown) and
// for machines (JSON).
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/advanced-computing/sleepy-narwhal/internal/pipeline"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

const dateLayout = "2006-01-02"

// Markdown writes one section per result. Nil results (datasets that failed
// before producing anything) are skipped.
func Markdown(w io.Writer, results []*pipeline.Result) error {
	var b strings.Builder
	for _, res := range results {
		if res == nil {
			continue
		}
		writeResult(&b, res)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeResult(b *strings.Builder, res *pipeline.Result) {
	fmt.Fprintf(b, "## %s\n\nrun `%s` in %s\n\n", res.Dataset, res.RunID, res.Elapsed.Truncate(time.Millisecond))

	summary := [][]string{
		{"total rows", strconv.Itoa(res.TotalRows)},
		{"skipped rows", strconv.Itoa(res.SkippedRows)},
		{"dropped (bad date)", strconv.Itoa(res.DroppedDates)},
		{"filtered out", strconv.Itoa(res.FilteredRows)},
		{"output rows", strconv.Itoa(res.OutputRows)},
		{"validation failures", strconv.Itoa(len(res.Failures))},
	}
	if res.Span != nil {
		summary = append(summary, []string{"date span", span(res.Span)})
	}
	if res.Bounds != nil {
		summary = append(summary, []string{"filter bounds", span(res.Bounds)})
	}
	if len(res.Missing) > 0 {
		summary = append(summary, []string{"unresolved roles", strings.Join(res.Missing, ", ")})
	}
	writeTable(b, []string{"metric", "value"}, summary)

	if len(res.Roles) > 0 {
		roles := make([]string, 0, len(res.Roles))
		for r := range res.Roles {
			roles = append(roles, r)
		}
		sort.Strings(roles)
		rows := make([][]string, 0, len(roles))
		for _, r := range roles {
			rows = append(rows, []string{r, res.Roles[r]})
		}
		b.WriteString("### Columns\n\n")
		writeTable(b, []string{"role", "column"}, rows)
	}

	if len(res.Steps) > 0 {
		rows := make([][]string, 0, len(res.Steps))
		for _, s := range res.Steps {
			note := ""
			if s.Skipped {
				note = "skipped: " + s.Reason
			}
			rows = append(rows, []string{s.Kind, s.Column, strconv.Itoa(s.RowsIn), strconv.Itoa(s.RowsOut), note})
		}
		b.WriteString("### Steps\n\n")
		writeTable(b, []string{"step", "column", "rows in", "rows out", "note"}, rows)
	}

	for _, v := range res.Categories {
		rows := make([][]string, 0, len(v.Counts)+1)
		for _, c := range v.Counts {
			rows = append(rows, []string{c.Value, strconv.Itoa(c.Count), percent(c.Count, v.Total)})
		}
		rows = append(rows, []string{"**total**", strconv.Itoa(v.Total), ""})
		fmt.Fprintf(b, "### %s\n\n", v.Name)
		writeTable(b, []string{v.Column, "count", "share"}, rows)
	}

	for _, v := range res.Series {
		rows := make([][]string, 0, len(v.Counts))
		for _, c := range v.Counts {
			rows = append(rows, []string{c.Start.Format(dateLayout), strconv.Itoa(c.Count)})
		}
		fmt.Fprintf(b, "### %s\n\n", v.Name)
		writeTable(b, []string{"from", "count"}, rows)
	}

	for _, v := range res.Histograms {
		rows := make([][]string, 0, len(v.Bins))
		for _, bin := range v.Bins {
			rows = append(rows, []string{
				strconv.FormatFloat(bin.Lower, 'f', -1, 64),
				strconv.FormatFloat(bin.Upper, 'f', -1, 64),
				strconv.Itoa(bin.Count),
			})
		}
		fmt.Fprintf(b, "### %s\n\n", v.Name)
		writeTable(b, []string{"from", "to", "count"}, rows)
	}

	if len(res.Failures) > 0 {
		rows := make([][]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			row := ""
			if f.Row >= 0 {
				row = strconv.Itoa(f.Row)
			}
			rows = append(rows, []string{row, f.Column, string(f.Kind), f.Rule, table.FormatValue(f.Value), f.Message})
		}
		b.WriteString("### Validation failures\n\n")
		writeTable(b, []string{"row", "column", "kind", "rule", "value", "message"}, rows)
	}

	if len(res.Preview) > 0 {
		rows := make([][]string, 0, len(res.Preview))
		for _, rec := range res.Preview {
			row := make([]string, len(res.Columns))
			for i, c := range res.Columns {
				row[i] = table.FormatValue(rec[c])
			}
			rows = append(rows, row)
		}
		b.WriteString("### Preview\n\n")
		writeTable(b, res.Columns, rows)
	}
}

// writeTable writes a Markdown table whose columns are padded to the widest
// cell by display width, so CJK and accented values line up in a terminal.
func writeTable(b *strings.Builder, header []string, rows [][]string) {
	widths := make([]int, len(header))
	measure := func(row []string) {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(escape(row[i])); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(header)
	for _, r := range rows {
		measure(r)
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	line := func(row []string) {
		b.WriteString("|")
		for i, w := range widths {
			cell := ""
			if i < len(row) {
				cell = escape(row[i])
			}
			b.WriteString(" ")
			b.WriteString(runewidth.FillRight(cell, w))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	line(header)
	b.WriteString("|")
	for _, w := range widths {
		b.WriteString(" " + strings.Repeat("-", w) + " |")
	}
	b.WriteString("\n")
	for _, r := range rows {
		line(r)
	}
	b.WriteString("\n")
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func percent(n, total int) string {
	if total == 0 {
		return ""
	}
	return strconv.FormatFloat(100*float64(n)/float64(total), 'f', 1, 64) + "%"
}

func span(s *pipeline.Span) string {
	return s.Start.Format(dateLayout) + " .. " + s.End.Format(dateLayout)
}
