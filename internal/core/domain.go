package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Workflow status of an expense. The boolean "processed" flag used by early
// revisions of the schema is deprecated; NormalizeStatus maps it (and the
// legacy Korean labels) to the canonical values at decode boundaries.
const (
	StatusSubmitted   Status = "submitted"
	StatusHeld        Status = "held"
	StatusTransferred Status = "transferred"
	StatusConfirmed   Status = "confirmed"
)

type (
	Status string

	// Expense is one persisted receipt record. Created exclusively by the
	// ingestion worker; mutated only through user-driven edits.
	Expense struct {
		ID               string
		UserID           string
		UploaderEmail    string // empty when the identity lookup failed at ingestion time
		Amount           float64
		Date             time.Time
		Merchant         string
		Category         string
		Description      string
		OriginalImageURL string
		ThumbnailURL     string // empty when thumbnail generation failed
		Status           Status
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// User is the identity record referenced by ingestion. Read-only input
	// to the pipeline; managed by the auth service.
	User struct {
		ID        string
		Email     string
		UserName  string
		Disabled  bool
		CreatedAt time.Time
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount: must be a non-negative number")
	ErrInvalidDate     = errors.New("invalid date: expected a valid calendar date")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrMissingImageURL = errors.New("missing original image url")
)

func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusHeld, StatusTransferred, StatusConfirmed:
		return true
	}
	return false
}

// legacy labels written by the first production deployment
var legacyStatusLabels = map[string]Status{
	"정산신청": StatusSubmitted,
	"보류":   StatusHeld,
	"이체완료": StatusTransferred,
	"확인완료": StatusConfirmed,
}

// NormalizeStatus maps any of the historical workflow-state encodings to the
// canonical enumerated status. processed is the deprecated boolean shape; it
// only applies when no status string is present.
func NormalizeStatus(status string, processed *bool) Status {
	s := Status(strings.TrimSpace(status))
	if s.Valid() {
		return s
	}
	if mapped, ok := legacyStatusLabels[string(s)]; ok {
		return mapped
	}
	if processed != nil && *processed {
		return StatusConfirmed
	}
	return StatusSubmitted
}

// ParseStatus validates a user-edited status field. Unlike NormalizeStatus it
// rejects unknown values instead of defaulting, so a typo cannot silently
// reset a record to submitted.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.TrimSpace(value))
	if s.Valid() {
		return s, nil
	}
	if mapped, ok := legacyStatusLabels[string(s)]; ok {
		return mapped, nil
	}
	return "", ErrInvalidStatus
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.OriginalImageURL) == "" {
		return ErrMissingImageURL
	}
	if e.Amount < 0 {
		return ErrInvalidAmount
	}
	if !e.Status.Valid() {
		return ErrInvalidStatus
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ParseAmount validates a user-edited amount field. Rejects anything that is
// not a finite non-negative number; ParseFloat accepts "NaN" and "Inf"
// literals, and a non-finite value would poison every later JSON encode of
// the record.
func ParseAmount(value string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
}

// ParseDate validates a user-edited date field (and extractor date text).
func ParseDate(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
