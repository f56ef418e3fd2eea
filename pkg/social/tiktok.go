package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTikTokBaseURL = "https://open.tiktokapis.com"

// tiktokMaxPageSize is the largest page the comment list endpoint accepts.
const tiktokMaxPageSize = 50

// TikTokOption configures the TikTok client.
type TikTokOption func(*tiktokClient)

// WithTikTokBaseURL overrides the default API base URL.
func WithTikTokBaseURL(u string) TikTokOption {
	return func(c *tiktokClient) { c.baseURL = u }
}

// WithTikTokHTTPClient overrides the default http.Client.
func WithTikTokHTTPClient(hc *http.Client) TikTokOption {
	return func(c *tiktokClient) { c.http = hc }
}

type tiktokClient struct {
	accessToken string
	baseURL     string
	http        *http.Client
}

// NewTikTokClient creates a client for the TikTok Research API video
// comment listing.
func NewTikTokClient(accessToken string, opts ...TikTokOption) Client {
	c := &tiktokClient{
		accessToken: accessToken,
		baseURL:     defaultTikTokBaseURL,
		http:        newHTTPClient(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tiktokCommentsResponse struct {
	Data struct {
		Comments []struct {
			ID         int64  `json:"id"`
			Text       string `json:"text"`
			LikeCount  int    `json:"like_count"`
			CreateTime int64  `json:"create_time"`
		} `json:"comments"`
	} `json:"data"`
}

func (c *tiktokClient) FetchComments(ctx context.Context, postID string, limit int) ([]Comment, error) {
	if limit > tiktokMaxPageSize {
		limit = tiktokMaxPageSize
	}
	q := url.Values{}
	q.Set("fields", "id,text,like_count,create_time")
	q.Set("video_id", postID)
	q.Set("max_count", fmt.Sprintf("%d", limit))

	var resp tiktokCommentsResponse
	err := getJSON(ctx, c.http, c.baseURL+"/v2/research/video/comment/list/?"+q.Encode(), map[string]string{
		"Authorization": "Bearer " + c.accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(resp.Data.Comments))
	for _, tc := range resp.Data.Comments {
		comments = append(comments, Comment{
			ID:          fmt.Sprintf("%d", tc.ID),
			Text:        tc.Text,
			Likes:       tc.LikeCount,
			PublishedAt: time.Unix(tc.CreateTime, 0).UTC(),
		})
	}
	return comments, nil
}
