package models

import (
	"fmt"
	"strings"
	"time"

	"medthread/internal/util"
)

type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

const (
	postPrefix    = "t3_"
	commentPrefix = "t1_"
)

// SourceItem is a post or comment as materialized by the content source.
// Depth is derived per batch by the thread package and never trusted from input.
type SourceItem struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	ParentID     string    `json:"parent_id,omitempty"`
	ParentIsRoot bool      `json:"parent_is_root"`
	ThreadID     string    `json:"thread_id"`
	Depth        int       `json:"depth"`
	AuthorTag    string    `json:"author_tag,omitempty"`
	Title        string    `json:"title,omitempty"`
	Body         string    `json:"body"`
	Score        int       `json:"score"`
	Community    string    `json:"community"`
	CreatedAt    time.Time `json:"created_at"`
	Pending      bool      `json:"pending"`
}

// Normalize validates the record once at the ingestion boundary so later stages
// never branch on missing attributes. Fullname prefixes on parent references are
// turned into the explicit ParentIsRoot signal and stripped.
func (s SourceItem) Normalize() (SourceItem, error) {
	s.ID = strings.TrimSpace(s.ID)
	s.ThreadID = strings.TrimPrefix(strings.TrimSpace(s.ThreadID), postPrefix)
	s.Community = strings.TrimSpace(s.Community)
	s.AuthorTag = util.SanitizeText(s.AuthorTag)
	s.Title = util.SanitizeText(s.Title)
	s.Body = util.SanitizeText(s.Body)
	if s.ID == "" {
		return SourceItem{}, fmt.Errorf("source item: empty id")
	}
	if s.Kind == "" {
		if s.ThreadID == "" || s.ThreadID == s.ID {
			s.Kind = KindPost
		} else {
			s.Kind = KindComment
		}
	}
	switch s.Kind {
	case KindPost:
		if s.ThreadID == "" {
			s.ThreadID = s.ID
		}
		s.ParentID = ""
		s.ParentIsRoot = false
		s.Depth = 0
	case KindComment:
		if s.ThreadID == "" {
			return SourceItem{}, fmt.Errorf("source item %s: comment without thread id", s.ID)
		}
		parent := strings.TrimSpace(s.ParentID)
		switch {
		case strings.HasPrefix(parent, postPrefix):
			parent = strings.TrimPrefix(parent, postPrefix)
			s.ParentIsRoot = true
		case strings.HasPrefix(parent, commentPrefix):
			parent = strings.TrimPrefix(parent, commentPrefix)
		}
		if parent == s.ThreadID {
			s.ParentIsRoot = true
		}
		if s.ParentIsRoot {
			parent = ""
		}
		s.ParentID = parent
		s.Depth = 0
	default:
		return SourceItem{}, fmt.Errorf("source item %s: unknown kind %q", s.ID, s.Kind)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Unix(0, 0).UTC()
	}
	return s, nil
}

// Content is the text that gets annotated: title and body for posts, body for comments.
func (s SourceItem) Content() string {
	if s.Kind == KindPost && s.Title != "" {
		if s.Body == "" {
			return s.Title
		}
		return s.Title + "\n\n" + s.Body
	}
	return s.Body
}

// AnnotationContext is the bounded conversational view handed to the annotation client.
// Ancestors are ordered root to item and exclude both the post and the item itself.
type AnnotationContext struct {
	Item             SourceItem   `json:"item"`
	Post             *SourceItem  `json:"post,omitempty"`
	Ancestors        []SourceItem `json:"ancestors"`
	TopReplies       []SourceItem `json:"top_replies"`
	DroppedAncestors int          `json:"dropped_ancestors"`
	PostTruncated    bool         `json:"post_truncated"`
	Chars            int          `json:"chars"`
}

// Filter narrows the bulk export.
type Filter struct {
	Community string     `json:"community,omitempty"`
	ThreadIDs []string   `json:"thread_ids,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	PostsOnly bool       `json:"posts_only,omitempty"`
}

func (f Filter) String() string {
	parts := make([]string, 0, 4)
	if f.Community != "" {
		parts = append(parts, "community="+f.Community)
	}
	if len(f.ThreadIDs) > 0 {
		parts = append(parts, "threads="+strings.Join(f.ThreadIDs, ","))
	}
	if f.Since != nil {
		parts = append(parts, "since="+f.Since.UTC().Format(time.RFC3339))
	}
	if f.PostsOnly {
		parts = append(parts, "posts_only")
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}
