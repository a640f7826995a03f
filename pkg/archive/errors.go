package archive

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("entity not found")

// APIError is a non-2xx response from the archive.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// HTTPStatus lets the transfer engine classify the failure.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// errorBody covers the XML error envelope returned by the entity API.
type errorBody struct {
	Message string `xml:"message"`
	Reason  string `xml:"reason"`
}

// newAPIError reads at most 4 KiB of the body for the message.
func newAPIError(op string, resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))

	var body errorBody
	if err := xml.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Reason != "":
			msg = body.Reason
		}
	}
	return &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}
