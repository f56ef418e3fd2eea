// Package social provides read-only comment clients for the supported
// social platforms. Each client fetches the comment thread under a single
// post; nothing here writes to any platform.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Comment is one comment under a post, normalized across platforms.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	Likes       int       `json:"likes"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Client fetches comments for a single post identified by its
// platform-native ID.
type Client interface {
	FetchComments(ctx context.Context, postID string, limit int) ([]Comment, error)
}

// StatusError is a non-200 platform response. Callers inspect Code to
// decide whether the fetch is worth retrying.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("social: unexpected status %d: %s", e.Code, e.Body)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// getJSON performs an authorized GET and decodes the response body into out.
// Callers pass nil header values to skip them.
func getJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "social: create request")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return eris.Wrap(err, "social: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "social: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: truncateBody(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "social: unmarshal response")
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
