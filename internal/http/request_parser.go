// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing request data. Write endpoints
// accept either a urlencoded form or a JSON object whose values are read as
// strings, so browser forms and API clients share one code path.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spesa/internal/core"
)

// maxBodyBytes bounds every request body the handlers read.
const maxBodyBytes = 64 << 10

var errBadBody = errors.New("malformed request body")

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once and stores it for parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body as JSON when the content type or first byte says
// so, and as a urlencoded form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errBadBody, p.err)
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.IsJSON() {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errBadBody, err)
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(string(p.body))
	if err != nil {
		p.err = fmt.Errorf("%w: %v", errBadBody, err)
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON reports whether the body is JSON.
func (p *RequestBodyParser) IsJSON() bool {
	if mt, _, err := mime.ParseMediaType(p.contentType); err == nil && mt == "application/json" {
		return true
	}
	return len(p.body) > 0 && p.body[0] == '{'
}

// stringValue converts a decoded JSON value to its form representation.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// parsePeriod reads year and month from the query string. Each falls back to
// the current value independently when missing or invalid.
func parsePeriod(query url.Values, now time.Time) core.Period {
	return core.ParsePeriod(query.Get("year"), query.Get("month"), now)
}

// pathID parses the {id} path segment. Anything that is not a positive
// integer is reported as a missing resource.
func pathID(r *http.Request, resource string) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.NotFoundError{Resource: resource, ID: 0}
	}
	return id, nil
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// sanitizeInput removes control characters other than tab and newline, turns
// CRLF and lone CR line endings into LF and trims whitespace.
func sanitizeInput(s string) string {
	s = lineEndings.Replace(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' {
			return -1
		}
		return r
	}, s)
}
