// Package thread rebuilds comment hierarchies from parent pointers and assembles
// bounded conversational context for annotation.
package thread

import (
	"medthread/internal/models"

	"github.com/rs/zerolog"
)

const DefaultMaxDepth = 50

// Node is the resolved position of one comment in its thread.
type Node struct {
	ID       string
	ParentID string
	Depth    int
	TopLevel bool
	Flagged  bool
	Reason   string
}

// Reconstructor derives comment depth from parent pointers. It never fails:
// malformed chains degrade to depth 1 with a warning.
type Reconstructor struct {
	maxDepth int
	log      zerolog.Logger
}

func NewReconstructor(maxDepth int, log zerolog.Logger) *Reconstructor {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Reconstructor{maxDepth: maxDepth, log: log}
}

// Reconstruct resolves every comment of one thread. Posts in the input are ignored.
func (r *Reconstructor) Reconstruct(threadID string, comments []models.SourceItem) map[string]Node {
	w := walker{
		threadID: threadID,
		maxDepth: r.maxDepth,
		log:      r.log.With().Str("thread_id", threadID).Logger(),
		byID:     make(map[string]models.SourceItem, len(comments)),
		memo:     make(map[string]Node, len(comments)),
	}
	for _, c := range comments {
		if c.Kind == models.KindComment {
			w.byID[c.ID] = c
		}
	}
	for _, c := range comments {
		if c.Kind == models.KindComment {
			w.resolve(c.ID)
		}
	}
	return w.memo
}

type walker struct {
	threadID string
	maxDepth int
	log      zerolog.Logger
	byID     map[string]models.SourceItem
	memo     map[string]Node
}

func (w *walker) resolve(id string) Node {
	if n, ok := w.memo[id]; ok {
		return n
	}

	// path holds unresolved comments from id upward; cur ends on the first
	// comment whose node is known.
	var path []string
	seen := map[string]struct{}{}
	cur := id
walk:
	for {
		if _, ok := w.memo[cur]; ok {
			break
		}
		if _, ok := seen[cur]; ok {
			for _, p := range path {
				w.memo[p] = w.flag(p, "cycle in parent chain")
			}
			return w.memo[id]
		}
		if len(path) >= w.maxDepth {
			w.memo[id] = w.flag(id, "parent chain exceeds depth cap")
			return w.memo[id]
		}
		seen[cur] = struct{}{}
		item := w.byID[cur]

		switch {
		case item.ParentIsRoot || (item.ParentID != "" && item.ParentID == w.threadID):
			w.memo[cur] = Node{ID: cur, Depth: 1, TopLevel: true}
			break walk
		case item.ParentID == "":
			w.log.Warn().Str("comment_id", cur).Msg("comment has no parent reference, treating as top-level")
			w.memo[cur] = Node{ID: cur, Depth: 1, TopLevel: true, Reason: "missing parent reference"}
			break walk
		}
		if _, ok := w.byID[item.ParentID]; !ok {
			w.log.Warn().Str("comment_id", cur).Str("parent_id", item.ParentID).Msg("parent not in thread, treating as top-level")
			w.memo[cur] = Node{ID: cur, Depth: 1, TopLevel: true, Reason: "parent " + item.ParentID + " not found"}
			break walk
		}
		path = append(path, cur)
		cur = item.ParentID
	}

	parent := cur
	for i := len(path) - 1; i >= 0; i-- {
		pn := w.memo[parent]
		n := Node{ID: path[i], ParentID: parent, Depth: pn.Depth + 1, Flagged: pn.Flagged}
		if pn.Flagged {
			n.Reason = "ancestor flagged for review"
		}
		if n.Depth > w.maxDepth {
			n = w.flag(path[i], "depth exceeds cap")
		}
		w.memo[path[i]] = n
		parent = path[i]
	}
	return w.memo[id]
}

func (w *walker) flag(id, reason string) Node {
	w.log.Warn().Str("comment_id", id).Str("reason", reason).Int("max_depth", w.maxDepth).Msg("depth anomaly, flagged for review")
	return Node{ID: id, Depth: 1, TopLevel: true, Flagged: true, Reason: reason}
}
