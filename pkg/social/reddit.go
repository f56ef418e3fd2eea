package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultRedditBaseURL = "https://oauth.reddit.com"

// RedditOption configures the Reddit client.
type RedditOption func(*redditClient)

// WithRedditBaseURL overrides the default API base URL.
func WithRedditBaseURL(u string) RedditOption {
	return func(c *redditClient) { c.baseURL = u }
}

// WithRedditHTTPClient overrides the default http.Client.
func WithRedditHTTPClient(hc *http.Client) RedditOption {
	return func(c *redditClient) { c.http = hc }
}

type redditClient struct {
	accessToken string
	userAgent   string
	baseURL     string
	http        *http.Client
}

// NewRedditClient creates a client for the Reddit comments listing. Reddit
// requires a descriptive User-Agent on every request.
func NewRedditClient(accessToken, userAgent string, opts ...RedditOption) Client {
	c := &redditClient{
		accessToken: accessToken,
		userAgent:   userAgent,
		baseURL:     defaultRedditBaseURL,
		http:        newHTTPClient(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// redditListing covers both elements of the two-element array the comments
// endpoint returns; index 0 is the post, index 1 the comment tree.
type redditListing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				ID         string  `json:"id"`
				Author     string  `json:"author"`
				Body       string  `json:"body"`
				Score      int     `json:"score"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (c *redditClient) FetchComments(ctx context.Context, postID string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("sort", "top")

	var listings []redditListing
	err := getJSON(ctx, c.http, c.baseURL+"/comments/"+url.PathEscape(postID)+"?"+q.Encode(), map[string]string{
		"Authorization": "bearer " + c.accessToken,
		"User-Agent":    c.userAgent,
	}, &listings)
	if err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}

	var comments []Comment
	for _, child := range listings[1].Data.Children {
		// "more" stubs and deleted comments carry no usable body.
		if child.Kind != "t1" || child.Data.Body == "" {
			continue
		}
		comments = append(comments, Comment{
			ID:          child.Data.ID,
			Author:      child.Data.Author,
			Text:        child.Data.Body,
			Likes:       child.Data.Score,
			PublishedAt: time.Unix(int64(child.Data.CreatedUTC), 0).UTC(),
		})
		if len(comments) >= limit {
			break
		}
	}
	return comments, nil
}
