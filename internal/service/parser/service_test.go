package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructuredLine(t *testing.T) {
	svc := NewService(nil)

	text := "1. Tab. Paracetamol 500mg - Take twice daily after meals for 5 days"
	mentions := svc.Parse(text)
	require.Len(t, mentions, 1)

	m := mentions[0]
	assert.Equal(t, "Paracetamol", m.Name)
	assert.Equal(t, "tablet", m.Form)
	assert.Equal(t, "500mg", m.Dosage)
	assert.Equal(t, "Twice daily", m.Frequency)
	assert.Equal(t, "5 days", m.Duration)
	assert.Equal(t, SourceStructured, m.Source)
	// base 0.7 + known drug 0.2 + non-default frequency 0.1, capped
	assert.GreaterOrEqual(t, m.Confidence, 0.8)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)
}

func TestParseFullPrescription(t *testing.T) {
	svc := NewService(nil)

	text := `Dr. A Sharma
Date: 12/03/2026
Patient: R Mehta
Age: 42
Diagnosis: URTI

Rx:
1. Tab. Azithromycin 500mg od for 3 days
2. Syp. Cetirizine 5ml at night for 5 days
3. Cap. Omeprazole 20mg before breakfast

Follow up after one week.
Signature`

	mentions := svc.Parse(text)
	require.Len(t, mentions, 3)

	assert.Equal(t, "Azithromycin", mentions[0].Name)
	assert.Equal(t, "Once daily", mentions[0].Frequency)
	assert.Equal(t, "3 days", mentions[0].Duration)

	assert.Equal(t, "Cetirizine", mentions[1].Name)
	assert.Equal(t, "syrup", mentions[1].Form)
	assert.Equal(t, "5ml", mentions[1].Dosage)

	assert.Equal(t, "Omeprazole", mentions[2].Name)
	assert.Equal(t, "capsule", mentions[2].Form)
	assert.Equal(t, "As needed", mentions[2].Frequency)
}

func TestParseFallback(t *testing.T) {
	svc := NewService(nil)

	t.Run("free-form text hits the drug library", func(t *testing.T) {
		mentions := svc.Parse("patient was advised metformin 850mg twice daily with meals")
		require.Len(t, mentions, 1)
		assert.Equal(t, "Metformin", mentions[0].Name)
		assert.Equal(t, "850mg", mentions[0].Dosage)
		assert.Equal(t, "Twice daily", mentions[0].Frequency)
		assert.Equal(t, SourceFallback, mentions[0].Source)
		assert.InDelta(t, 0.6, mentions[0].Confidence, 1e-9)
	})

	t.Run("missing dosage gets the default", func(t *testing.T) {
		mentions := svc.Parse("continue crocin as needed")
		require.Len(t, mentions, 1)
		assert.Equal(t, FallbackDosage, mentions[0].Dosage)
	})

	t.Run("brand alias resolves", func(t *testing.T) {
		mentions := svc.Parse("take dolo 650mg every 6 hours")
		require.Len(t, mentions, 1)
		assert.Equal(t, "Dolo", mentions[0].Name)
		assert.Equal(t, "Every 6 hours", mentions[0].Frequency)
	})

	t.Run("no mentions at all", func(t *testing.T) {
		assert.Empty(t, svc.Parse("lorem ipsum dolor sit amet"))
	})
}

func TestExtractFrequency(t *testing.T) {
	svc := NewService(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"take once daily", "Once daily"},
		{"1 time per day", "Once daily"},
		{"twice a day after food", "Twice daily"},
		{"bd", "Twice daily"},
		{"tid with meals", "Three times daily"},
		{"tds", "Three times daily"},
		{"qid", "Four times daily"},
		{"every 8 hours", "Every 8 hours"},
		{"prn", "As needed"},
		{"sos if fever", "As needed"},
		{"no vocabulary here", "As needed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, svc.extractFrequency(tt.in), "input %q", tt.in)
	}
}

func TestExtractDuration(t *testing.T) {
	svc := NewService(nil)

	assert.Equal(t, "5 days", svc.extractDuration("for 5 days"))
	assert.Equal(t, "2 weeks", svc.extractDuration("take for 2 weeks"))
	assert.Equal(t, "1 month", svc.extractDuration("1 month course"))
	assert.Equal(t, "", svc.extractDuration("until finished"))
}

func TestPatternTableVersion(t *testing.T) {
	assert.Equal(t, 1, NewService(nil).TableVersion())
}
