package model

// CommentEnrichment is the fetched comment thread for one top-engagement
// post. It is not authoritative data — purely an input to synthesis and
// report display. Each comment is shaped like a Post.
type CommentEnrichment struct {
	ParentPostID string   `json:"parent_post_id"`
	Platform     Platform `json:"platform"`
	Comments     []Post   `json:"comments"`
}
