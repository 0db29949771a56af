package cli

import (
	"errors"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/store"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by scripts. Classified
// engine errors use their kind's code instead, e.g. UNKNOWN_FIELD or
// MISSING_THRESHOLD.
const (
	ErrConfigInvalid    = "CONFIG_INVALID"
	ErrFileReadError    = "FILE_READ_ERROR"
	ErrFileWriteError   = "FILE_WRITE_ERROR"
	ErrDatabaseError    = "DATABASE_ERROR"
	ErrInvalidInput     = "INVALID_INPUT"
	ErrNotFound         = "NOT_FOUND"
	ErrValidationFailed = "VALIDATION_FAILED"
	ErrRegistration     = "REGISTRATION_FAILED"
	ErrQueryInvalid     = "QUERY_INVALID"
	ErrInternal         = "INTERNAL_ERROR"
)

// Warning codes for non-fatal issues.
const (
	WarnItemFailed     = "ITEM_FAILED"
	WarnLastSearchLost = "LAST_SEARCH_NOT_SAVED"
)

// errorCode picks the most specific code for err.
func errorCode(err error, fallback string) string {
	if k := errs.KindOf(err); k != errs.Unknown {
		return k.Code()
	}
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if fallback == "" {
		return ErrInternal
	}
	return fallback
}

// errorDetails exposes the context of a classified error.
func errorDetails(err error) map[string]string {
	var ce *errs.Error
	if !errors.As(err, &ce) {
		return nil
	}
	details := map[string]string{}
	if ce.EntityType != "" {
		details["entity_type"] = ce.EntityType
	}
	if ce.Field != "" {
		details["field"] = ce.Field
	}
	if ce.Fragment != "" {
		details["fragment"] = ce.Fragment
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func suggestionFor(err error) string {
	switch errs.KindOf(err) {
	case errs.UnknownField:
		return "Run 'mt schema show <entity_type>' to list registered fields"
	case errs.MissingThreshold:
		return "Add a threshold to the IS SIMILAR condition or set chemistry.allow_default_threshold"
	case errs.NoJoinPath, errs.AmbiguousGrouping:
		return "Aggregate fields from levels below the search level"
	case errs.SchemaConflict:
		return "Use 'mt schema update <id> <file>' to change an existing definition"
	}
	return ""
}
