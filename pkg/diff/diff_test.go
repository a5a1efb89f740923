package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/go-elixir/pkg/diff"
	"github.com/walteh/go-elixir/pkg/token"
)

func stream(t *testing.T, values ...string) *token.Stream {
	t.Helper()
	s := token.NewStream("", token.FIFO)
	for _, v := range values {
		require.NoError(t, s.Push(&token.ExpressionContentToken{Code: token.KindExpressionChars, Value: v, SourceLine: 1}))
	}
	s.Freeze()
	return s
}

func TestExportedOnly(t *testing.T) {
	type item struct {
		Name   string
		hidden int
	}

	assert.Empty(t, diff.ExportedOnly(item{Name: "a", hidden: 1}, item{Name: "a", hidden: 2}), "unexported fields are ignored")

	d := diff.ExportedOnly(item{Name: "a"}, item{Name: "b"})
	assert.Contains(t, d, "➕")
	assert.Contains(t, d, "➖")
}

func TestStreams(t *testing.T) {
	assert.Empty(t, diff.Streams(stream(t, "a", "b"), stream(t, "a", "b")))

	d := diff.Streams(stream(t, "a", "b"), stream(t, "a", "c"))
	assert.Contains(t, d, `➕expression-chars "b"`)
	assert.Contains(t, d, `➖expression-chars "c"`)
}
