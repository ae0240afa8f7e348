// Package board defines the job-board collaborator contracts the workflow
// core consumes: the job post store, the outbound notification sender, and
// the recipient directory. The CRUD, search, and rendering layers that
// implement them live outside this module.
package board

import (
	"context"
	"time"
)

// PostStatus is the lifecycle status of a job post.
type PostStatus string

const (
	// PostStatusActive means the listing is visible on the board.
	PostStatusActive PostStatus = "ACTIVE"
	// PostStatusExpired means the listing duration elapsed.
	PostStatusExpired PostStatus = "EXPIRED"
	// PostStatusDraft means the listing was created but never published.
	PostStatusDraft PostStatus = "DRAFT"
)

// Post is one job listing as the workflow core sees it.
type Post struct {
	ID         string     `json:"id" msgpack:"id"`
	Title      string     `json:"title" msgpack:"title"`
	Company    string     `json:"company" msgpack:"company"`
	Location   string     `json:"location" msgpack:"location"`
	SalaryFrom int        `json:"salary_from" msgpack:"salary_from"`
	SalaryTo   int        `json:"salary_to" msgpack:"salary_to"`
	Status     PostStatus `json:"status" msgpack:"status"`
	CreatedAt  time.Time  `json:"created_at" msgpack:"created_at"`
}

// PostStore is the job post persistence collaborator.
type PostStore interface {
	// GetPost retrieves one post by identifier.
	GetPost(ctx context.Context, jobID string) (*Post, error)

	// UpdatePostStatus sets the status of one post. Setting a status the
	// post already holds must succeed; the workflow core may deliver the
	// update more than once after a crash.
	UpdatePostStatus(ctx context.Context, jobID string, status PostStatus) error

	// ListRecentActive returns up to limit active posts, newest first.
	ListRecentActive(ctx context.Context, limit int) ([]*Post, error)
}
