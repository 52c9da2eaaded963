package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"askdb/internal/database"
)

// BarChart creates a horizontal bar chart line
func BarChart(label string, value, max float64, width int, color lipgloss.Color) string {
	if max == 0 {
		max = value
	}

	percentage := 0.0
	if max > 0 {
		percentage = value / max
	}
	if percentage > 1 {
		percentage = 1
	}

	filledWidth := int(float64(width) * percentage)
	if filledWidth < 0 {
		filledWidth = 0
	}
	if filledWidth > width {
		filledWidth = width
	}

	filled := strings.Repeat("█", filledWidth)
	empty := strings.Repeat("░", width-filledWidth)

	barStyle := lipgloss.NewStyle().Foreground(color)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	return fmt.Sprintf("%s %s%s %s",
		label,
		barStyle.Render(filled),
		emptyStyle.Render(empty),
		strconv.FormatFloat(value, 'f', -1, 64),
	)
}

var errNoNumericColumn = errors.New("result has no numeric column to chart")

// renderBars draws rows as a terminal bar chart. The first column whose
// values all parse as numbers is the value; the first other column is the
// label.
func renderBars(rows *database.Rows, width int) (string, error) {
	valueCol := -1
	for i := range rows.Columns {
		if numericColumn(rows.Values, i) {
			valueCol = i
			break
		}
	}
	if valueCol < 0 {
		return "", errNoNumericColumn
	}
	labelCol := -1
	for i := range rows.Columns {
		if i != valueCol {
			labelCol = i
			break
		}
	}

	labels := make([]string, len(rows.Values))
	values := make([]float64, len(rows.Values))
	labelWidth, max := 0, 0.0
	for r, row := range rows.Values {
		labels[r] = strconv.Itoa(r + 1)
		if labelCol >= 0 {
			labels[r] = row[labelCol]
		}
		labelWidth = maxInt(labelWidth, lipgloss.Width(labels[r]))
		values[r], _ = strconv.ParseFloat(strings.TrimSpace(row[valueCol]), 64)
		if values[r] > max {
			max = values[r]
		}
	}

	var b strings.Builder
	for r := range values {
		label := labels[r] + strings.Repeat(" ", labelWidth-lipgloss.Width(labels[r]))
		b.WriteString(BarChart(label, values[r], max, width, lipgloss.Color("33")))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func numericColumn(values [][]string, col int) bool {
	if len(values) == 0 {
		return false
	}
	for _, row := range values {
		if col >= len(row) {
			return false
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64); err != nil {
			return false
		}
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
