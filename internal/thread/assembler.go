package thread

import (
	"sort"

	"medthread/internal/models"
	"medthread/internal/util"
)

const (
	DefaultTopReplies      = 5
	DefaultMaxContextChars = 12000
)

type AssemblerOptions struct {
	TopReplies      int
	MaxContextChars int
}

// Assembler builds per-item context from a resolved Lookup. It makes no external
// calls and does not mutate the lookup.
type Assembler struct {
	lookup *Lookup
	opts   AssemblerOptions
}

func NewAssembler(l *Lookup, opts AssemblerOptions) *Assembler {
	if opts.TopReplies < 0 {
		opts.TopReplies = 0
	} else if opts.TopReplies == 0 {
		opts.TopReplies = DefaultTopReplies
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	return &Assembler{lookup: l, opts: opts}
}

// Build returns the bounded context for item. Posts get their highest-scored
// direct replies; comments get the ancestor chain, oldest dropped first when the
// character budget is exceeded.
func (a *Assembler) Build(item models.SourceItem) models.AnnotationContext {
	ctx := models.AnnotationContext{
		Item:       item,
		Ancestors:  []models.SourceItem{},
		TopReplies: []models.SourceItem{},
	}
	if item.Kind == models.KindPost {
		ctx.TopReplies = a.topReplies(item.ID)
		ctx.Chars = itemChars(item) + sumChars(ctx.TopReplies)
		for ctx.Chars > a.opts.MaxContextChars && len(ctx.TopReplies) > 0 {
			last := ctx.TopReplies[len(ctx.TopReplies)-1]
			ctx.TopReplies = ctx.TopReplies[:len(ctx.TopReplies)-1]
			ctx.Chars -= itemChars(last)
		}
		return ctx
	}

	if post, ok := a.lookup.Post(item.ThreadID); ok {
		ctx.Post = &post
	}
	ctx.Ancestors = a.ancestors(item)

	budget := a.opts.MaxContextChars
	total := itemChars(item) + sumChars(ctx.Ancestors)
	if ctx.Post != nil {
		total += itemChars(*ctx.Post)
	}
	for total > budget && len(ctx.Ancestors) > 0 {
		total -= itemChars(ctx.Ancestors[0])
		ctx.Ancestors = ctx.Ancestors[1:]
		ctx.DroppedAncestors++
	}
	if total > budget && ctx.Post != nil {
		post := *ctx.Post
		room := budget - itemChars(item) - util.RuneLen(post.Title)
		if room < 0 {
			room = 0
		}
		post.Body = util.TruncateRunes(post.Body, room)
		total = total - itemChars(*ctx.Post) + itemChars(post)
		ctx.Post = &post
		ctx.PostTruncated = true
	}
	ctx.Chars = total
	return ctx
}

// ancestors walks resolved parent pointers and returns them root first.
func (a *Assembler) ancestors(item models.SourceItem) []models.SourceItem {
	chain := []models.SourceItem{}
	seen := map[string]struct{}{item.ID: {}}
	parentID := item.ParentID
	for parentID != "" && len(chain) < DefaultMaxDepth*2 {
		if _, ok := seen[parentID]; ok {
			break
		}
		seen[parentID] = struct{}{}
		p, ok := a.lookup.Item(parentID)
		if !ok || p.Kind != models.KindComment {
			break
		}
		chain = append(chain, p)
		parentID = p.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func (a *Assembler) topReplies(postID string) []models.SourceItem {
	replies := a.lookup.Children(postID)
	sort.SliceStable(replies, func(i, j int) bool {
		if replies[i].Score != replies[j].Score {
			return replies[i].Score > replies[j].Score
		}
		if !replies[i].CreatedAt.Equal(replies[j].CreatedAt) {
			return replies[i].CreatedAt.Before(replies[j].CreatedAt)
		}
		return replies[i].ID < replies[j].ID
	})
	if len(replies) > a.opts.TopReplies {
		replies = replies[:a.opts.TopReplies]
	}
	return replies
}

func itemChars(it models.SourceItem) int {
	return util.RuneLen(it.Title) + util.RuneLen(it.Body)
}

func sumChars(items []models.SourceItem) int {
	n := 0
	for _, it := range items {
		n += itemChars(it)
	}
	return n
}
