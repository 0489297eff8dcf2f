package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes one logical backend call, independent of retry state.
// Body is kept as bytes so a retry re-sends it in full.
type Request struct {
	Method string
	Path   string // relative to the API base, e.g. "/sensor/latest"
	Route  string // metrics label; defaults to Path
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewJSONRequest marshals payload (when non-nil) as the request body.
func NewJSONRequest(method, path string, payload any) (Request, error) {
	r := Request{Method: method, Path: path}
	if payload == nil {
		return r, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s %s body: %w", method, path, err)
	}
	r.Body = data
	return r, nil
}

func (r Request) route() string {
	if r.Route != "" {
		return r.Route
	}
	return r.Path
}

func (r Request) url(baseURL string) string {
	u := baseURL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}
