package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

// YouTubeOption configures the YouTube client.
type YouTubeOption func(*youtubeClient)

// WithYouTubeBaseURL overrides the default API base URL.
func WithYouTubeBaseURL(u string) YouTubeOption {
	return func(c *youtubeClient) { c.baseURL = u }
}

// WithYouTubeHTTPClient overrides the default http.Client.
func WithYouTubeHTTPClient(hc *http.Client) YouTubeOption {
	return func(c *youtubeClient) { c.http = hc }
}

type youtubeClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewYouTubeClient creates a client for the YouTube Data API v3
// commentThreads endpoint.
func NewYouTubeClient(apiKey string, opts ...YouTubeOption) Client {
	c := &youtubeClient{
		apiKey:  apiKey,
		baseURL: defaultYouTubeBaseURL,
		http:    newHTTPClient(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type youtubeThreadsResponse struct {
	Items []struct {
		Snippet struct {
			TopLevelComment struct {
				ID      string `json:"id"`
				Snippet struct {
					Author      string `json:"authorDisplayName"`
					Text        string `json:"textOriginal"`
					LikeCount   int    `json:"likeCount"`
					PublishedAt string `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *youtubeClient) FetchComments(ctx context.Context, postID string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("videoId", postID)
	q.Set("maxResults", fmt.Sprintf("%d", limit))
	q.Set("order", "relevance")
	q.Set("key", c.apiKey)

	var resp youtubeThreadsResponse
	if err := getJSON(ctx, c.http, c.baseURL+"/commentThreads?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(resp.Items))
	for _, item := range resp.Items {
		top := item.Snippet.TopLevelComment
		published, _ := time.Parse(time.RFC3339, top.Snippet.PublishedAt)
		comments = append(comments, Comment{
			ID:          top.ID,
			Author:      top.Snippet.Author,
			Text:        top.Snippet.Text,
			Likes:       top.Snippet.LikeCount,
			PublishedAt: published,
		})
	}
	return comments, nil
}
