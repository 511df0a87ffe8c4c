// Package services contains clients for the collaborating platform services
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// HTTPError is a non-2xx answer from a collaborator
type HTTPError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an HTTPError with the given status code
func IsStatus(err error, code int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == code
}

// IsReadTimeout reports whether err is a network timeout. The initiator loop
// distinguishes these from other failures when choosing its retry schedule.
func IsReadTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func doJSONBasicAuth(ctx context.Context, client *http.Client, service, method, url, user, pass string, payload any, out any) error {
	return doRequest(ctx, client, service, method, url, nil, payload, out, func(req *http.Request) {
		req.SetBasicAuth(user, pass)
	})
}

func doJSON(ctx context.Context, client *http.Client, service, method, url string, headers map[string]string, payload any, out any) error {
	return doRequest(ctx, client, service, method, url, headers, payload, out, nil)
}

func doRequest(ctx context.Context, client *http.Client, service, method, url string, headers map[string]string, payload any, out any, mutate func(*http.Request)) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", service, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", service, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if mutate != nil {
		mutate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Service: service, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", service, err)
	}
	return nil
}
