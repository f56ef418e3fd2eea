package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultXBaseURL = "https://api.x.com"

// XOption configures the X client.
type XOption func(*xClient)

// WithXBaseURL overrides the default API base URL.
func WithXBaseURL(u string) XOption {
	return func(c *xClient) { c.baseURL = u }
}

// WithXHTTPClient overrides the default http.Client.
func WithXHTTPClient(hc *http.Client) XOption {
	return func(c *xClient) { c.http = hc }
}

type xClient struct {
	bearerToken string
	baseURL     string
	http        *http.Client
}

// NewXClient creates a client for the X API v2 recent search endpoint,
// used to pull replies in a post's conversation.
func NewXClient(bearerToken string, opts ...XOption) Client {
	c := &xClient{
		bearerToken: bearerToken,
		baseURL:     defaultXBaseURL,
		http:        newHTTPClient(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type xSearchResponse struct {
	Data []struct {
		ID        string `json:"id"`
		AuthorID  string `json:"author_id"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
		Metrics   struct {
			LikeCount int `json:"like_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

func (c *xClient) FetchComments(ctx context.Context, postID string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("conversation_id:%s", postID))
	q.Set("max_results", fmt.Sprintf("%d", limit))
	q.Set("tweet.fields", "author_id,created_at,public_metrics")
	q.Set("expansions", "author_id")

	var resp xSearchResponse
	err := getJSON(ctx, c.http, c.baseURL+"/2/tweets/search/recent?"+q.Encode(), map[string]string{
		"Authorization": "Bearer " + c.bearerToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	usernames := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		usernames[u.ID] = u.Username
	}

	comments := make([]Comment, 0, len(resp.Data))
	for _, t := range resp.Data {
		published, _ := time.Parse(time.RFC3339, t.CreatedAt)
		comments = append(comments, Comment{
			ID:          t.ID,
			Author:      usernames[t.AuthorID],
			Text:        t.Text,
			Likes:       t.Metrics.LikeCount,
			PublishedAt: published,
		})
	}
	return comments, nil
}
