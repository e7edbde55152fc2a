package security

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Reference limits for request validation.
const (
	DefaultMaxBodyBytes        int64 = 1 << 20
	DefaultMaxQueryParamLength       = 1000
)

// ValidationConfig configures the input validation stage.
type ValidationConfig struct {
	// RequiredHeaders must be present and non-empty. Defaults to User-Agent.
	RequiredHeaders []string
	// MaxBodyBytes caps the declared Content-Length.
	MaxBodyBytes int64
	// MaxQueryParamLength caps every individual query parameter value.
	MaxQueryParamLength int
}

// Violation describes why a request failed validation.
type Violation struct {
	Status  int
	Code    string
	Message string
}

func (v *Violation) Error() string { return v.Message }

// Violation codes.
const (
	CodeMissingHeader     = "MISSING_HEADER"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeQueryParamTooLong = "QUERY_PARAM_TOO_LONG"
)

// Validator checks requests against a ValidationConfig.
type Validator struct {
	required []string
	maxBody  int64
	maxParam int
}

// NewValidator fills in reference defaults for zero fields.
func NewValidator(cfg ValidationConfig) *Validator {
	v := &Validator{
		required: cfg.RequiredHeaders,
		maxBody:  cfg.MaxBodyBytes,
		maxParam: cfg.MaxQueryParamLength,
	}
	if v.required == nil {
		v.required = []string{"User-Agent"}
	}
	if v.maxBody <= 0 {
		v.maxBody = DefaultMaxBodyBytes
	}
	if v.maxParam <= 0 {
		v.maxParam = DefaultMaxQueryParamLength
	}
	return v
}

// MaxBodyBytes returns the effective body limit.
func (v *Validator) MaxBodyBytes() int64 { return v.maxBody }

// Check returns nil when r is acceptable. Checks run in a fixed order:
// required headers, declared payload size, query parameter length.
func (v *Validator) Check(r *http.Request) *Violation {
	for _, h := range v.required {
		if r.Header.Get(h) == "" {
			return &Violation{
				Status:  http.StatusBadRequest,
				Code:    CodeMissingHeader,
				Message: fmt.Sprintf("%s header is required", h),
			}
		}
	}

	if r.ContentLength > v.maxBody {
		return &Violation{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    CodePayloadTooLarge,
			Message: fmt.Sprintf("payload too large (maximum %d bytes)", v.maxBody),
		}
	}

	for pair := range strings.SplitSeq(r.URL.RawQuery, "&") {
		key, val, _ := strings.Cut(pair, "=")
		if utf8.RuneCountInString(unescape(val)) > v.maxParam {
			return &Violation{
				Status:  http.StatusBadRequest,
				Code:    CodeQueryParamTooLong,
				Message: fmt.Sprintf("query parameter %q too long", unescape(key)),
			}
		}
	}
	return nil
}

// unescape decodes a query component, keeping it raw when it is not valid
// percent-encoding. Malformed queries are measured, never rejected.
func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
