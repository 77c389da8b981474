package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medassist/internal/db"
	"medassist/internal/logger"
	"medassist/pkg"
)

type fakeSummarizer struct {
	inputs []string
	reply  string
	err    error
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.inputs = append(f.inputs, text)
	return f.reply, f.err
}

// seed stores n alternating user/assistant turns: u1, a2, u3, ...
func seed(t *testing.T, store *db.MemoryStore, session string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		role := pkg.RoleUser
		prefix := "u"
		if i%2 == 0 {
			role, prefix = pkg.RoleAssistant, "a"
		}
		require.NoError(t, store.AppendTurn(context.Background(), session, role, fmt.Sprintf("%s%d", prefix, i)))
	}
}

func contents(turns []pkg.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Content
	}
	return out
}

func TestPrepareShortHistoryPassesEverything(t *testing.T) {
	store := db.NewMemoryStore()
	seed(t, store, "s", 12)
	require.NoError(t, store.SetSummary(context.Background(), "s", "older summary"))
	store.SummaryWrites = 0
	sum := &fakeSummarizer{reply: "unused"}

	view, err := NewManager(store, sum, 0, logger.Nop()).Prepare(context.Background(), "s")
	require.NoError(t, err)
	assert.Len(t, view.Recent, 12)
	assert.Empty(t, sum.inputs)
	assert.False(t, view.Result.Attempted)
	assert.Equal(t, "older summary", view.Summary)
	assert.Zero(t, store.SummaryWrites)
}

func TestPrepareThirteenTurnsSummarizesFirstSeven(t *testing.T) {
	store := db.NewMemoryStore()
	seed(t, store, "s", 13)
	sum := &fakeSummarizer{reply: "  headache for three days  "}

	view, err := NewManager(store, sum, 0, logger.Nop()).Prepare(context.Background(), "s")
	require.NoError(t, err)

	require.Len(t, sum.inputs, 1)
	assert.Equal(t, "u1\nu3\nu5\nu7", sum.inputs[0])
	assert.Equal(t, []string{"a8", "u9", "a10", "u11", "a12", "u13"}, contents(view.Recent))
	assert.Equal(t, "headache for three days", view.Summary)
	assert.True(t, view.Result.Stored)
	assert.True(t, view.Result.OK())
	assert.Equal(t, 1, store.SummaryWrites)
}

func TestPrepareCapsSummaryInputs(t *testing.T) {
	store := db.NewMemoryStore()
	seed(t, store, "s", 60)
	sum := &fakeSummarizer{reply: "s"}

	_, err := NewManager(store, sum, 0, logger.Nop()).Prepare(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, sum.inputs, 1)
	lines := strings.Split(sum.inputs[0], "\n")
	assert.Len(t, lines, MaxSummaryInputs)
	assert.Equal(t, "u15", lines[0])
	assert.Equal(t, "u53", lines[len(lines)-1])
}

func TestPrepareSummarizationFailureKeepsPrevious(t *testing.T) {
	for name, sum := range map[string]*fakeSummarizer{
		"error": {err: errors.New("rate limited")},
		"empty": {reply: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			store := db.NewMemoryStore()
			seed(t, store, "s", 14)
			require.NoError(t, store.SetSummary(context.Background(), "s", "previous"))

			view, err := NewManager(store, sum, 0, logger.Nop()).Prepare(context.Background(), "s")
			require.NoError(t, err)
			assert.True(t, view.Result.Attempted)
			assert.False(t, view.Result.OK())
			assert.False(t, view.Result.Stored)
			assert.Equal(t, "previous", view.Summary)
			assert.Len(t, view.Recent, RecentWindow)
		})
	}
}

func TestPrepareTruncatesSummary(t *testing.T) {
	store := db.NewMemoryStore()
	require.NoError(t, store.SetSummary(context.Background(), "s", strings.Repeat("ü", 1500)))

	view, err := NewManager(store, &fakeSummarizer{}, 0, logger.Nop()).Prepare(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, MaxSummaryChars, len([]rune(view.Summary)))
	assert.Empty(t, view.Recent)
}

type failingStore struct{ *db.MemoryStore }

func (failingStore) ListTurns(context.Context, string) ([]pkg.Turn, error) {
	return nil, errors.New("connection reset")
}

func TestPrepareListFailureIsHard(t *testing.T) {
	_, err := NewManager(failingStore{db.NewMemoryStore()}, &fakeSummarizer{}, 0, logger.Nop()).Prepare(context.Background(), "s")
	assert.ErrorIs(t, err, ErrListTurns)
}
