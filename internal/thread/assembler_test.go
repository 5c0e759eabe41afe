package thread

import (
	"strings"
	"testing"
	"time"

	"medthread/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func buildThread(t *testing.T, items ...models.SourceItem) *Lookup {
	t.Helper()
	l := NewLookup(items)
	l.Resolve(NewReconstructor(0, zerolog.Nop()))
	return l
}

func post(id, body string) models.SourceItem {
	return models.SourceItem{ID: id, Kind: models.KindPost, ThreadID: id, Title: "title", Body: body, CreatedAt: t0}
}

func reply(id, parent string, root bool, body string, score int, at time.Time) models.SourceItem {
	return models.SourceItem{
		ID: id, Kind: models.KindComment, ThreadID: "p", ParentID: parent, ParentIsRoot: root,
		Body: body, Score: score, CreatedAt: at,
	}
}

func TestLookupResolveWritesDepthAndParentIndex(t *testing.T) {
	l := buildThread(t,
		post("p", "post body"),
		reply("a", "", true, "top", 1, t0),
		reply("b", "a", false, "child", 1, t0),
	)
	b, ok := l.Item("b")
	require.True(t, ok)
	assert.Equal(t, 2, b.Depth)
	a, _ := l.Item("a")
	assert.Equal(t, 1, a.Depth)

	require.Len(t, l.Children("p"), 1)
	require.Len(t, l.Children("a"), 1)
	assert.Equal(t, "b", l.Children("a")[0].ID)
	assert.Equal(t, []string{"p"}, l.Threads())
}

func TestPostContextTakesTopRepliesByScoreWithStableTies(t *testing.T) {
	items := []models.SourceItem{post("p", "post body")}
	items = append(items,
		reply("low", "", true, "low", 1, t0),
		reply("tie-late", "", true, "tie late", 10, t0.Add(2*time.Minute)),
		reply("tie-early", "", true, "tie early", 10, t0.Add(time.Minute)),
		reply("best", "", true, "best", 50, t0),
		reply("nested", "best", false, "nested high score", 999, t0),
	)
	l := buildThread(t, items...)
	p, _ := l.Item("p")

	ctx := NewAssembler(l, AssemblerOptions{TopReplies: 3}).Build(p)
	require.Len(t, ctx.TopReplies, 3)
	assert.Equal(t, "best", ctx.TopReplies[0].ID)
	assert.Equal(t, "tie-early", ctx.TopReplies[1].ID)
	assert.Equal(t, "tie-late", ctx.TopReplies[2].ID)
	assert.Nil(t, ctx.Post)
	assert.Empty(t, ctx.Ancestors)
}

func TestCommentContextOrdersAncestorsRootFirst(t *testing.T) {
	l := buildThread(t,
		post("p", "post body"),
		reply("a", "", true, "first", 0, t0),
		reply("b", "a", false, "second", 0, t0),
		reply("c", "b", false, "third", 0, t0),
	)
	c, _ := l.Item("c")
	ctx := NewAssembler(l, AssemblerOptions{}).Build(c)
	require.NotNil(t, ctx.Post)
	assert.Equal(t, "p", ctx.Post.ID)
	require.Len(t, ctx.Ancestors, 2)
	assert.Equal(t, "a", ctx.Ancestors[0].ID)
	assert.Equal(t, "b", ctx.Ancestors[1].ID)
	assert.Equal(t, 0, ctx.DroppedAncestors)
	assert.Empty(t, ctx.TopReplies)
}

func TestCommentContextDropsOldestAncestorsFirst(t *testing.T) {
	long := strings.Repeat("x", 150)
	l := buildThread(t,
		post("p", "short"),
		reply("a", "", true, long, 0, t0),
		reply("b", "a", false, long, 0, t0),
		reply("c", "b", false, "target", 0, t0),
	)
	c, _ := l.Item("c")
	ctx := NewAssembler(l, AssemblerOptions{MaxContextChars: 200}).Build(c)
	require.Len(t, ctx.Ancestors, 1)
	assert.Equal(t, "b", ctx.Ancestors[0].ID)
	assert.Equal(t, 1, ctx.DroppedAncestors)
	assert.False(t, ctx.PostTruncated)
	assert.LessOrEqual(t, ctx.Chars, 200)
}

func TestCommentContextTruncatesPostWhenChainAloneDoesNotFit(t *testing.T) {
	l := buildThread(t,
		post("p", strings.Repeat("y", 500)),
		reply("a", "", true, "hello there", 0, t0),
	)
	a, _ := l.Item("a")
	ctx := NewAssembler(l, AssemblerOptions{MaxContextChars: 100}).Build(a)
	require.NotNil(t, ctx.Post)
	assert.True(t, ctx.PostTruncated)
	assert.Equal(t, 100, ctx.Chars)
	assert.Len(t, ctx.Post.Body, 100-len("hello there")-len("title"))

	orig, _ := l.Item("p")
	assert.Len(t, orig.Body, 500)
}

func TestCommentWithoutExportedPostStillBuilds(t *testing.T) {
	l := buildThread(t, reply("a", "", true, "orphaned thread", 0, t0))
	a, _ := l.Item("a")
	ctx := NewAssembler(l, AssemblerOptions{}).Build(a)
	assert.Nil(t, ctx.Post)
	assert.Empty(t, ctx.Ancestors)
}

func TestPendingOrdersOldestFirst(t *testing.T) {
	x := reply("x", "", true, "x", 0, t0.Add(time.Hour))
	x.Pending = true
	y := reply("y", "", true, "y", 0, t0)
	y.Pending = true
	z := reply("z", "", true, "z", 0, t0)
	l := buildThread(t, x, y, z)
	got := l.Pending()
	require.Len(t, got, 2)
	assert.Equal(t, "y", got[0].ID)
	assert.Equal(t, "x", got[1].ID)
}
