package driver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/datamorph-io/forcetap/types"
)

// stable error codes surfaced to the operator tooling
const (
	ErrCodeAPIError        = "salesforce.SalesforceApiError"
	ErrCodeInvalidField    = "salesforce.InvalidField"
	ErrCodeInvalidFilter   = "salesforce.InvalidFilter"
	ErrCodeBulkAPIDisabled = "salesforce.BulkApiDisabled"
)

// apiError is the structured error body the remote service returns, either
// as a single object or as a one-element array.
type apiError struct {
	ErrorCode        string `json:"errorCode"`
	Message          string `json:"message"`
	ExceptionCode    string `json:"exceptionCode"`
	ExceptionMessage string `json:"exceptionMessage"`
}

func (e *apiError) code() string {
	if e.ExceptionCode != "" {
		return e.ExceptionCode
	}
	return e.ErrorCode
}

func (e *apiError) message() string {
	if e.ExceptionMessage != "" {
		return e.ExceptionMessage
	}
	return e.Message
}

// parseAPIError lifts a non-2xx response body into a classified error when a
// structured code+message pair is parseable, else wraps it generically.
func parseAPIError(status int, body []byte) error {
	parsed := &apiError{}
	if err := json.Unmarshal(body, parsed); err != nil {
		var list []*apiError
		if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
			parsed = list[0]
		}
	}

	if parsed.code() != "" && parsed.message() != "" {
		return types.NewClassifiedError(ErrCodeAPIError,
			fmt.Sprintf("Import failed with the following Salesforce error: (error code: %s) %s", parsed.code(), parsed.message()))
	}

	return fmt.Errorf("request failed with status %d: %s", status, string(body))
}

var (
	invalidFieldRegex  = regexp.MustCompile(`No such column '([^']*)' on entity '([^']*)'`)
	filterTypeRegex    = regexp.MustCompile(`value of filter criterion for field '([A-Za-z0-9_]*)' must be of type ([A-Za-z0-9]*)`)
	filterOperandRegex = func(field string) *regexp.Regexp {
		return regexp.MustCompile(fmt.Sprintf(`\(%s .* (.*?)\)`, regexp.QuoteMeta(field)))
	}
)

// classifyQueryError inspects a remote query failure and turns the known
// code/message patterns into user-actionable classified errors.
func (s *Salesforce) classifyQueryError(err error) error {
	if err == nil {
		return nil
	}
	message := err.Error()

	if strings.Contains(message, "OPERATION_TOO_LARGE: exceeded 100000 distinct who/what's") {
		return types.NewClassifiedErrorWrap(ErrCodeAPIError,
			"OPERATION_TOO_LARGE: exceeded 100000 distinct who/what's. "+
				"Consider asking your Salesforce System Administrator to provide you with the "+
				"`View All Data` profile permission.", err)
	}

	if strings.Contains(message, "INVALID_FIELD") && strings.Contains(message, "No such column") {
		if match := invalidFieldRegex.FindStringSubmatch(message); match != nil {
			return types.NewClassifiedErrorWrap(ErrCodeInvalidField,
				fmt.Sprintf("We can't find \"%s\" column on \"%s\" %s. Review the Field Level Permissions in Salesforce and try importing your data again.",
					match[1], match[2], s.config.SourceType), err)
		}
	}

	if match := filterTypeRegex.FindStringSubmatch(message); match != nil {
		field, wantType := match[1], match[2]
		if valueMatch := filterOperandRegex(field).FindStringSubmatch(message); valueMatch != nil {
			return types.NewClassifiedErrorWrap(ErrCodeInvalidFilter,
				fmt.Sprintf("Invalid filter: Field %s filter value of %s does not match field type of %s", field, valueMatch[1], wantType), err)
		}
		return types.NewClassifiedErrorWrap(ErrCodeInvalidFilter,
			fmt.Sprintf("Invalid filter: Value of filter criterion for field '%s' is of invalid type", field), err)
	}

	return err
}
