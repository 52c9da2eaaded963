package cmd

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdb/internal/database"
)

func TestBarChart(t *testing.T) {
	testCases := []struct {
		name       string
		value, max float64
		filled     int
	}{
		{"half", 5, 10, 5},
		{"full", 10, 10, 10},
		{"over max", 15, 10, 10},
		{"zero max uses value", 3, 0, 10},
		{"zero", 0, 10, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			line := BarChart("x", tc.value, tc.max, 10, lipgloss.Color("33"))
			assert.Equal(t, tc.filled, strings.Count(line, "█"))
			assert.Equal(t, 10-tc.filled, strings.Count(line, "░"))
		})
	}
}

func TestRenderBars(t *testing.T) {
	rows := &database.Rows{
		Columns: []string{"Genre", "Tracks"},
		Values: [][]string{
			{"Rock", "4"},
			{"Jazz", "2"},
			{"Metal", "3"},
			{"Alternative & Punk", "1"},
		},
	}

	out, err := renderBars(rows, 8)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Rock "))
	assert.Equal(t, 8, strings.Count(lines[0], "█"))
	assert.Equal(t, 4, strings.Count(lines[1], "█"))
	assert.Equal(t, 6, strings.Count(lines[2], "█"))
	assert.True(t, strings.HasSuffix(lines[3], " 1"))

	_, err = renderBars(&database.Rows{
		Columns: []string{"Name"},
		Values:  [][]string{{"AC/DC"}},
	}, 6)
	assert.ErrorIs(t, err, errNoNumericColumn)
}
