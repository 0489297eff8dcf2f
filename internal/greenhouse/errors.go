package greenhouse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// RequestError is a non-2xx response from the backend, other than a 401 that
// was recovered by refreshing. Message is what the operator should see.
type RequestError struct {
	Method   string
	Endpoint string
	Status   int
	Message  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("greenhouse %s %s: %s (status %d)", e.Method, e.Endpoint, e.Message, e.Status)
}

// Unauthorized reports whether the backend still rejected the credential
// after the refresh-and-retry cycle.
func (e *RequestError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// errorBody covers both FastAPI error shapes: {"detail": "..."} and
// {"detail": [{"msg": "...", "loc": [...]}, ...]}, plus a plain {"message"}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type validationIssue struct {
	Msg string `json:"msg"`
}

// errorMessage extracts the backend-supplied message, or returns fallback
// when the body is empty or undecodable.
func errorMessage(body []byte, fallback string) string {
	var eb errorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return fallback
	}

	if len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil && strings.TrimSpace(s) != "" {
			return s
		}
		var issues []validationIssue
		if json.Unmarshal(eb.Detail, &issues) == nil {
			msgs := make([]string, 0, len(issues))
			for _, is := range issues {
				if is.Msg != "" {
					msgs = append(msgs, is.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}

	if strings.TrimSpace(eb.Message) != "" {
		return eb.Message
	}
	return fallback
}
