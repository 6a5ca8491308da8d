// Package parser turns raw OCR text into structured medicine mentions.
//
// Two strategies run in order: a structured line-by-line parse for
// prescriptions that follow the usual "1. Tab. Name 500mg ..." shape, and a
// drug-name pattern scan as fallback for free-form or badly recognized
// text. The fallback carries a lower base confidence.
package parser

import (
	"fmt"
	"strings"
)

// Confidence model for parsed mentions.
const (
	structuredBaseConfidence = 0.7
	fallbackBaseConfidence   = 0.6
	knownDrugBonus           = 0.2
	frequencyBonus           = 0.1
)

// Mention sources.
const (
	SourceStructured = "structured"
	SourceFallback   = "pattern_library"
)

// Mention is one medicine extracted from text, before persistence or
// catalog cross-checking.
type Mention struct {
	Name       string
	Form       string
	Dosage     string
	Frequency  string
	Duration   string
	Confidence float64
	Source     string
}

type Service struct {
	table *PatternTable
}

func NewService(table *PatternTable) *Service {
	if table == nil {
		table = DefaultTable()
	}
	return &Service{table: table}
}

func (s *Service) TableVersion() int {
	return s.table.Version
}

// Parse extracts medicine mentions from one block of OCR text.
func (s *Service) Parse(text string) []Mention {
	mentions := s.parseStructured(text)
	if len(mentions) == 0 {
		mentions = s.parseFallback(text)
	}
	return mentions
}

// parseStructured scans line by line, entering the medicine section at a
// header or at the first line that itself looks like a dosage line.
func (s *Service) parseStructured(text string) []Mention {
	var mentions []Mention
	inSection := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || s.skipLine(line) {
			continue
		}

		if !inSection {
			if s.isSectionHeader(line) {
				inSection = true
				continue
			}
			if s.table.StructuredLine.MatchString(line) {
				inSection = true
			} else {
				continue
			}
		}

		m := s.table.StructuredLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		name := strings.TrimSpace(m[2])
		instructions := m[4]
		frequency := s.extractFrequency(instructions)

		confidence := structuredBaseConfidence
		if s.matchesKnownDrug(name) {
			confidence += knownDrugBonus
		}
		if frequency != DefaultFrequency {
			confidence += frequencyBonus
		}
		if confidence > 1.0 {
			confidence = 1.0
		}

		mentions = append(mentions, Mention{
			Name:       name,
			Form:       normalizeForm(m[1]),
			Dosage:     strings.ToLower(strings.ReplaceAll(m[3], " ", "")),
			Frequency:  frequency,
			Duration:   s.extractDuration(instructions),
			Confidence: confidence,
			Source:     SourceStructured,
		})
	}
	return mentions
}

// parseFallback scans the whole text against the drug-name library and
// pulls dosage details off whichever line each match sits on.
func (s *Service) parseFallback(text string) []Mention {
	var mentions []Mention
	lines := strings.Split(text, "\n")
	seen := make(map[string]bool)

	for _, class := range s.table.DrugClasses {
		for _, pattern := range class.Patterns {
			match := pattern.FindString(text)
			if match == "" {
				continue
			}
			key := strings.ToLower(match)
			if seen[key] {
				continue
			}
			seen[key] = true

			line := findLineContaining(lines, match)
			dosage := s.extractDosage(line)
			if dosage == "" {
				dosage = FallbackDosage
			}

			mentions = append(mentions, Mention{
				Name:       capitalize(match),
				Dosage:     dosage,
				Frequency:  s.extractFrequency(line),
				Duration:   s.extractDuration(line),
				Confidence: fallbackBaseConfidence,
				Source:     SourceFallback,
			})
		}
	}
	return mentions
}

func (s *Service) skipLine(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range s.table.SkipPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (s *Service) isSectionHeader(line string) bool {
	for _, header := range s.table.SectionHeaders {
		if header.MatchString(line) {
			return true
		}
	}
	return false
}

func (s *Service) matchesKnownDrug(name string) bool {
	for _, class := range s.table.DrugClasses {
		for _, pattern := range class.Patterns {
			if pattern.MatchString(name) {
				return true
			}
		}
	}
	return false
}

func (s *Service) extractDosage(line string) string {
	for _, pattern := range s.table.DosagePatterns {
		if match := pattern.FindString(line); match != "" {
			return strings.ToLower(strings.ReplaceAll(match, " ", ""))
		}
	}
	return ""
}

func (s *Service) extractFrequency(text string) string {
	for _, rule := range s.table.FrequencyRules {
		if rule.Pattern.MatchString(text) {
			return rule.Canonical
		}
	}
	if m := s.table.EveryNHours.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("Every %s hours", m[1])
	}
	return DefaultFrequency
}

func (s *Service) extractDuration(text string) string {
	m := s.table.Duration.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	unit := strings.ToLower(m[2])
	if m[1] != "1" {
		unit += "s"
	}
	return m[1] + " " + unit
}

func normalizeForm(form string) string {
	switch strings.ToLower(strings.TrimRight(form, "s")) {
	case "tab":
		return "tablet"
	case "cap":
		return "capsule"
	case "syp":
		return "syrup"
	case "inj":
		return "injection"
	case "drop":
		return "drops"
	}
	return strings.ToLower(form)
}

func findLineContaining(lines []string, fragment string) string {
	lower := strings.ToLower(fragment)
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), lower) {
			return line
		}
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
