package thread

import (
	"sort"

	"medthread/internal/models"
)

// Lookup indexes one exported batch. Build it once, call Resolve once, then
// hand it to an Assembler.
type Lookup struct {
	items         []models.SourceItem
	byID          map[string]int
	posts         map[string]int
	itemsByThread map[string][]int
	itemsByParent map[string][]int
	nodes         map[string]Node
}

func NewLookup(items []models.SourceItem) *Lookup {
	l := &Lookup{
		items:         make([]models.SourceItem, 0, len(items)),
		byID:          make(map[string]int, len(items)),
		posts:         map[string]int{},
		itemsByThread: map[string][]int{},
		itemsByParent: map[string][]int{},
		nodes:         map[string]Node{},
	}
	for _, it := range items {
		if _, dup := l.byID[it.ID]; dup {
			continue
		}
		idx := len(l.items)
		l.items = append(l.items, it)
		l.byID[it.ID] = idx
		l.itemsByThread[it.ThreadID] = append(l.itemsByThread[it.ThreadID], idx)
		if it.Kind == models.KindPost {
			l.posts[it.ThreadID] = idx
		}
	}
	return l
}

// Resolve runs the reconstructor once per thread, writes depth and resolved
// parent back onto each comment and builds the parent index. It returns the
// number of comments flagged for review.
func (l *Lookup) Resolve(r *Reconstructor) int {
	flagged := 0
	for _, threadID := range l.Threads() {
		idxs := l.itemsByThread[threadID]
		comments := make([]models.SourceItem, 0, len(idxs))
		for _, i := range idxs {
			if l.items[i].Kind == models.KindComment {
				comments = append(comments, l.items[i])
			}
		}
		for id, n := range r.Reconstruct(threadID, comments) {
			l.nodes[id] = n
			it := &l.items[l.byID[id]]
			it.Depth = n.Depth
			it.ParentID = n.ParentID
			it.ParentIsRoot = n.TopLevel
			if n.Flagged {
				flagged++
			}
		}
	}

	l.itemsByParent = map[string][]int{}
	for i, it := range l.items {
		if it.Kind != models.KindComment {
			continue
		}
		parent := it.ParentID
		if it.ParentIsRoot {
			parent = it.ThreadID
		}
		if parent != "" {
			l.itemsByParent[parent] = append(l.itemsByParent[parent], i)
		}
	}
	return flagged
}

// Threads returns thread ids in a stable order.
func (l *Lookup) Threads() []string {
	out := make([]string, 0, len(l.itemsByThread))
	for id := range l.itemsByThread {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (l *Lookup) Item(id string) (models.SourceItem, bool) {
	i, ok := l.byID[id]
	if !ok {
		return models.SourceItem{}, false
	}
	return l.items[i], true
}

func (l *Lookup) Post(threadID string) (models.SourceItem, bool) {
	i, ok := l.posts[threadID]
	if !ok {
		return models.SourceItem{}, false
	}
	return l.items[i], true
}

// Node returns the reconstructor's verdict for a comment.
func (l *Lookup) Node(id string) (Node, bool) {
	n, ok := l.nodes[id]
	return n, ok
}

// Children lists direct replies to id; for a post id this includes top-level comments.
func (l *Lookup) Children(id string) []models.SourceItem {
	idxs := l.itemsByParent[id]
	out := make([]models.SourceItem, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.items[i])
	}
	return out
}

// Pending returns the items marked for annotation, oldest first.
func (l *Lookup) Pending() []models.SourceItem {
	out := make([]models.SourceItem, 0, len(l.items))
	for _, it := range l.items {
		if it.Pending {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (l *Lookup) Len() int {
	return len(l.items)
}
