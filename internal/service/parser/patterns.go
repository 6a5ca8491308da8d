package parser

import (
	"regexp"
)

// PatternTable is the immutable lookup data the parser runs on. It is
// versioned so new drug classes or vocabulary can ship without touching
// parsing logic.
type PatternTable struct {
	Version int

	// SectionHeaders open the medicine section of a prescription.
	SectionHeaders []*regexp.Regexp
	// SkipPrefixes mark lines that are clearly not medicines.
	SkipPrefixes []string
	// StructuredLine matches one dosage line: optional number, form
	// token, name, amount+unit, then free-text instructions.
	StructuredLine *regexp.Regexp

	DosagePatterns []*regexp.Regexp
	FrequencyRules []FrequencyRule
	EveryNHours    *regexp.Regexp
	Duration       *regexp.Regexp

	// DrugClasses back the fallback scan, organized by therapeutic class
	// with brand-name aliases folded into each pattern.
	DrugClasses []DrugClass
}

type FrequencyRule struct {
	Pattern   *regexp.Regexp
	Canonical string
}

type DrugClass struct {
	Class    string
	Patterns []*regexp.Regexp
}

// DefaultFrequency is used when no frequency vocabulary matches.
const DefaultFrequency = "As needed"

// FallbackDosage is assumed when the fallback path finds no dosage on the
// matched line.
const FallbackDosage = "500mg"

// DefaultTable returns version 1 of the pattern data.
func DefaultTable() *PatternTable {
	return &PatternTable{
		Version: 1,

		SectionHeaders: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*rx\s*[:.]`),
			regexp.MustCompile(`(?i)^\s*medicines?\s*[:.]`),
			regexp.MustCompile(`(?i)^\s*medications?\s*[:.]`),
			regexp.MustCompile(`(?i)^\s*treatment\s*[:.]`),
		},

		SkipPrefixes: []string{
			"dr.", "date:", "patient:", "age:", "diagnosis:", "follow", "signature",
		},

		StructuredLine: regexp.MustCompile(
			`(?i)^\s*(?:\d+\s*[.)]\s*)?(Tab|Cap|Syp|Inj|Drop)s?\.?\s+([A-Za-z][A-Za-z ]*?)\s+(\d+(?:\.\d+)?\s*(?:mg|gm|ml|mcg|iu))\b(.*)$`),

		DosagePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b\d+\s*/\s*\d+\s*(?:mg|gm|ml|mcg|iu)\b`),
			regexp.MustCompile(`(?i)\b\d+\.\d+\s*(?:mg|gm|ml|mcg|iu)\b`),
			regexp.MustCompile(`(?i)\b\d+\s*(?:mg|gm|ml|mcg|iu)\b`),
		},

		FrequencyRules: []FrequencyRule{
			{regexp.MustCompile(`(?i)\b(?:once\s+(?:a\s+day|daily)|1\s*time\s*(?:a|per)\s*day|od)\b`), "Once daily"},
			{regexp.MustCompile(`(?i)\b(?:twice\s+(?:a\s+day|daily)|2\s*times\s*(?:a|per)\s*day|bd|bid)\b`), "Twice daily"},
			{regexp.MustCompile(`(?i)\b(?:three\s+times\s+(?:a\s+day|daily)|thrice\s+(?:a\s+day|daily)|3\s*times\s*(?:a|per)\s*day|tid|tds)\b`), "Three times daily"},
			{regexp.MustCompile(`(?i)\b(?:four\s+times\s+(?:a\s+day|daily)|4\s*times\s*(?:a|per)\s*day|qid)\b`), "Four times daily"},
			{regexp.MustCompile(`(?i)\b(?:as\s+needed|prn|sos)\b`), DefaultFrequency},
		},
		EveryNHours: regexp.MustCompile(`(?i)\bevery\s+(\d+)\s+hours?\b`),

		Duration: regexp.MustCompile(`(?i)(?:for\s+)?(\d+)\s*(day|week|month)s?\b`),

		DrugClasses: []DrugClass{
			{
				Class: "analgesics",
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(paracetamol|acetaminophen|crocin|dolo|calpol)\b`),
					regexp.MustCompile(`(?i)\b(ibuprofen|brufen|combiflam)\b`),
					regexp.MustCompile(`(?i)\b(diclofenac|voveran)\b`),
					regexp.MustCompile(`(?i)\b(aspirin|disprin|ecosprin)\b`),
				},
			},
			{
				Class: "antibiotics",
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(amoxicillin|amoxil|mox)\b`),
					regexp.MustCompile(`(?i)\b(azithromycin|azithral|zithromax)\b`),
					regexp.MustCompile(`(?i)\b(ciprofloxacin|ciplox)\b`),
					regexp.MustCompile(`(?i)\b(cefixime|taxim)\b`),
					regexp.MustCompile(`(?i)\b(doxycycline)\b`),
				},
			},
			{
				Class: "antidiabetics",
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(metformin|glycomet|glucophage)\b`),
					regexp.MustCompile(`(?i)\b(glimepiride|amaryl)\b`),
					regexp.MustCompile(`(?i)\b(sitagliptin|januvia)\b`),
					regexp.MustCompile(`(?i)\b(insulin)\b`),
				},
			},
			{
				Class: "cardiovascular",
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(amlodipine|amlong)\b`),
					regexp.MustCompile(`(?i)\b(atenolol)\b`),
					regexp.MustCompile(`(?i)\b(telmisartan|telma)\b`),
					regexp.MustCompile(`(?i)\b(atorvastatin|lipitor|atorva)\b`),
					regexp.MustCompile(`(?i)\b(losartan)\b`),
				},
			},
			{
				Class: "respiratory",
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(salbutamol|asthalin|ventolin)\b`),
					regexp.MustCompile(`(?i)\b(montelukast|montair)\b`),
					regexp.MustCompile(`(?i)\b(cetirizine|zyrtec|cetzine)\b`),
					regexp.MustCompile(`(?i)\b(levocetirizine)\b`),
				},
			},
			{
				Class: "gastrointestinal",
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(omeprazole|omez)\b`),
					regexp.MustCompile(`(?i)\b(pantoprazole|pantocid)\b`),
					regexp.MustCompile(`(?i)\b(ranitidine|rantac)\b`),
					regexp.MustCompile(`(?i)\b(domperidone|domstal)\b`),
					regexp.MustCompile(`(?i)\b(ondansetron|emeset)\b`),
				},
			},
			{
				Class: "vitamins",
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\b(multivitamin|becosules)\b`),
					regexp.MustCompile(`(?i)\b(vitamin\s+[a-e]\d*)\b`),
					regexp.MustCompile(`(?i)\b(calcium|shelcal)\b`),
					regexp.MustCompile(`(?i)\b(folic\s+acid)\b`),
					regexp.MustCompile(`(?i)\b(ferrous\s+sulphate)\b`),
				},
			},
		},
	}
}
