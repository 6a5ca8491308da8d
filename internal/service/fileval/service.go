// Package fileval validates candidate prescription files before any upload
// side effect happens. All rules are evaluated and every violation is
// collected; nothing short-circuits.
package fileval

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultMaxFileSize  = 10 << 20 // 10 MB
	DefaultMaxBatchSize = 5
	MinPlausibleSize    = 1 << 10 // files under 1 KB are suspicious
	MaxFileNameLength   = 255
)

var defaultAcceptedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/heic",
	"application/pdf",
}

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9._\- ]+$`)

// FileInfo describes one candidate file as declared by the uploader.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string
}

// Result collects every violation found. Valid is false iff Errors is
// non-empty; warnings never affect Valid.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type Config struct {
	MaxFileSize   int64
	MaxBatchSize  int
	AcceptedTypes []string
}

type Service struct {
	maxFileSize  int64
	maxBatchSize int
	accepted     map[string]bool
}

func NewService(cfg Config) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	types := cfg.AcceptedTypes
	if len(types) == 0 {
		types = defaultAcceptedTypes
	}
	accepted := make(map[string]bool, len(types))
	for _, t := range types {
		accepted[strings.ToLower(t)] = true
	}
	return &Service{
		maxFileSize:  cfg.MaxFileSize,
		maxBatchSize: cfg.MaxBatchSize,
		accepted:     accepted,
	}
}

// ValidateFile checks a single candidate file against all rules.
func (s *Service) ValidateFile(file FileInfo) Result {
	var result Result

	if file.Size > s.maxFileSize {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file %q exceeds maximum size of %d bytes", file.Name, s.maxFileSize))
	}
	if !s.accepted[strings.ToLower(file.MimeType)] {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file %q has unsupported type %q", file.Name, file.MimeType))
	}
	if len(file.Name) > MaxFileNameLength {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file name exceeds %d characters", MaxFileNameLength))
	}

	if file.Size < MinPlausibleSize {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("file %q is implausibly small (%d bytes)", file.Name, file.Size))
	}
	if file.Name != "" && !safeNamePattern.MatchString(file.Name) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("file name %q contains unusual characters", file.Name))
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateBatch checks every file plus the batch-level rules. No upload may
// be attempted unless the whole batch is valid.
func (s *Service) ValidateBatch(files []FileInfo) Result {
	var result Result

	if len(files) == 0 {
		result.Errors = append(result.Errors, "no files provided")
	}
	if len(files) > s.maxBatchSize {
		result.Errors = append(result.Errors,
			fmt.Sprintf("batch of %d files exceeds maximum of %d", len(files), s.maxBatchSize))
	}

	seen := make(map[string]bool, len(files))
	for _, file := range files {
		if seen[file.Name] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("duplicate file name %q in batch", file.Name))
		}
		seen[file.Name] = true

		fr := s.ValidateFile(file)
		result.Errors = append(result.Errors, fr.Errors...)
		result.Warnings = append(result.Warnings, fr.Warnings...)
	}

	result.Valid = len(result.Errors) == 0
	return result
}
