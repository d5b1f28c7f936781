// Package validation checks KYC submission fields against per-document-type
// rules. Validate is pure: it reads nothing but its arguments.
package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	dErrors "healthtrack/pkg/domain-errors"
)

// DocumentType is the closed set of accepted identity documents.
type DocumentType string

const (
	DocumentNIN            DocumentType = "nin"
	DocumentPassport       DocumentType = "passport"
	DocumentDriversLicense DocumentType = "drivers_license"
	DocumentVotersCard     DocumentType = "voters_card"
	DocumentNationalID     DocumentType = "national_id"
)

// DateLayout is the accepted date of birth format.
const DateLayout = "2006-01-02"

const (
	minNameLength = 2
	maxNameLength = 100
	maxAgeYears   = 150
)

var (
	rawNumberPattern = regexp.MustCompile(`^[A-Za-z0-9]{5,50}$`)

	numberPatterns = map[DocumentType]*regexp.Regexp{
		DocumentNIN:            regexp.MustCompile(`^[0-9]{11}$`),
		DocumentPassport:       regexp.MustCompile(`^[A-Z][0-9]{8}$`),
		DocumentDriversLicense: regexp.MustCompile(`^[A-Z0-9]{10,12}$`),
		DocumentVotersCard:     regexp.MustCompile(`^[A-Z0-9]{19}$`),
		DocumentNationalID:     regexp.MustCompile(`^[A-Z0-9]{8,15}$`),
	}
)

// ParseDocumentType returns the typed document type or InvalidDocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	dt := DocumentType(s)
	if _, ok := numberPatterns[dt]; !ok {
		return "", dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidDocumentType, "unsupported document type")
	}
	return dt, nil
}

// Input is a raw submission as received from the client.
type Input struct {
	DocumentType   string
	DocumentNumber string
	FullName       string
	DateOfBirth    string
}

// Fields is a submission that passed validation, in normalized form.
type Fields struct {
	DocumentType   DocumentType
	DocumentNumber string
	FullName       string
	DateOfBirth    time.Time
}

// Validate checks field by field and returns the first failure. today is
// the reference date for the age window; only its calendar date is used.
func Validate(in Input, today time.Time) (Fields, error) {
	docType, err := ParseDocumentType(in.DocumentType)
	if err != nil {
		return Fields{}, err
	}

	number, err := validateNumber(docType, in.DocumentNumber)
	if err != nil {
		return Fields{}, err
	}

	name, err := validateFullName(in.FullName)
	if err != nil {
		return Fields{}, err
	}

	dob, err := validateDateOfBirth(in.DateOfBirth, today)
	if err != nil {
		return Fields{}, err
	}

	return Fields{
		DocumentType:   docType,
		DocumentNumber: number,
		FullName:       name,
		DateOfBirth:    dob,
	}, nil
}

func validateNumber(docType DocumentType, raw string) (string, error) {
	// The raw check runs before normalization, so padded input is refused.
	if !rawNumberPattern.MatchString(raw) {
		return "", dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidDocumentNumber,
			"document number must be 5-50 letters or digits")
	}
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if !numberPatterns[docType].MatchString(normalized) {
		return "", dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidDocumentNumber,
			"document number does not match the format for "+string(docType))
	}
	return normalized, nil
}

func validateFullName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return "", dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidFullName,
			"full name must be 2-100 characters")
	}
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' || r == '.' {
			continue
		}
		return "", dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidFullName,
			"full name may contain only letters, spaces, hyphens, apostrophes and periods")
	}
	return name, nil
}

func validateDateOfBirth(raw string, today time.Time) (time.Time, error) {
	dob, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidDateOfBirth,
			"date of birth must be a date in YYYY-MM-DD format")
	}

	y, m, d := today.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	oldest := day.AddDate(-maxAgeYears, 0, 0)
	youngest := day.AddDate(-1, 0, 0)

	if !dob.After(oldest) || !dob.Before(youngest) {
		return time.Time{}, dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidDateOfBirth,
			"date of birth is outside the accepted range")
	}
	return dob, nil
}

// ValidateRejectionReason trims reason and enforces 1-1000 characters.
func ValidateRejectionReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidReason, "rejection reason is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxReasonLength {
		return "", dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonInvalidReason, "rejection reason must be at most 1000 characters")
	}
	return trimmed, nil
}

// MaxReasonLength bounds stored rejection reasons.
const MaxReasonLength = 1000
