package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/mocks"
)

var testSeen = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func addAlias(t *testing.T, store *mocks.Store, memberID int64, rawName string, source entities.Source) {
	t.Helper()
	_, err := store.AddAlias(context.Background(), memberID, rawName, source, testSeen)
	require.NoError(t, err)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{name: "identical", a: "jakestl314", b: "jakestl314", expected: 1},
		{name: "empty", a: "", b: "jake", expected: 0},
		{name: "one edit", a: "nightowls", b: "nightowl", expected: 8.0 / 9.0},
		{name: "containment", a: "jake", b: "jakestl314", expected: 0.4},
		{name: "unrelated", a: "abc", b: "xyz", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Similarity(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.expected, Similarity(tt.b, tt.a), 1e-9)
		})
	}
}

func TestMatcherService_Resolve(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Jake STL 314", testSeen)
	addAlias(t, store, 1, "jake stl 314", entities.SourceStats)

	matcher := NewMatcherService(store, DefaultMatcherOptions())

	t.Run("exact alias with other separators", func(t *testing.T) {
		match, err := matcher.Resolve(ctx, "Jake-STL_314", entities.SourceStats)
		require.NoError(t, err)
		assert.Equal(t, entities.Resolved(1, entities.ViaExact, "jakestl314"), match)
	})

	t.Run("cross source", func(t *testing.T) {
		match, err := matcher.Resolve(ctx, "JakeSTL314", entities.SourceChat)
		require.NoError(t, err)
		assert.True(t, match.IsResolved())
		assert.Equal(t, int64(1), match.MemberID)
		assert.Equal(t, entities.ViaCrossSource, match.Via)
	})

	t.Run("near miss is not resolved", func(t *testing.T) {
		match, err := matcher.Resolve(ctx, "jakestl31", entities.SourceStats)
		require.NoError(t, err)
		assert.False(t, match.IsResolved())
		assert.Equal(t, "jakestl31", match.Key)
	})

	t.Run("empty name", func(t *testing.T) {
		match, err := matcher.Resolve(ctx, " _ ", entities.SourceStats)
		require.NoError(t, err)
		assert.False(t, match.IsResolved())
		assert.Empty(t, match.Key)
	})

	t.Run("store error", func(t *testing.T) {
		failing := mocks.NewStore()
		failing.Err = errors.New("db closed")
		_, err := NewMatcherService(failing, DefaultMatcherOptions()).Resolve(ctx, "jake", entities.SourceStats)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db closed")
	})
}

func TestMatcherService_Suggest(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Night Owl", testSeen)
	store.AddMember(2, "Nite Owl", testSeen)
	store.AddMember(3, "Zebra", testSeen)

	t.Run("default threshold drops weak candidates", func(t *testing.T) {
		matcher := NewMatcherService(store, DefaultMatcherOptions())
		suggestions, err := matcher.Suggest(ctx, "nightowls", 0)
		require.NoError(t, err)
		require.Len(t, suggestions, 1)
		assert.Equal(t, int64(1), suggestions[0].MemberID)
		assert.Equal(t, "Night Owl", suggestions[0].DisplayName)
		assert.InDelta(t, 8.0/9.0, suggestions[0].Confidence, 1e-9)
	})

	t.Run("sorted by confidence", func(t *testing.T) {
		matcher := NewMatcherService(store, MatcherOptions{SuggestThreshold: 0.5, SuggestLimit: 5})
		suggestions, err := matcher.Suggest(ctx, "nightowls", 0)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)
		assert.Equal(t, int64(1), suggestions[0].MemberID)
		assert.Equal(t, int64(2), suggestions[1].MemberID)
		assert.Greater(t, suggestions[0].Confidence, suggestions[1].Confidence)

		limited, err := matcher.Suggest(ctx, "nightowls", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("alias beats display name", func(t *testing.T) {
		addAlias(t, store, 3, "Night_Owls", entities.SourceChat)
		matcher := NewMatcherService(store, DefaultMatcherOptions())

		suggestions, err := matcher.Suggest(ctx, "night owls", 0)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)
		assert.Equal(t, int64(3), suggestions[0].MemberID)
		assert.Equal(t, "Night_Owls", suggestions[0].Alias)
		assert.InDelta(t, 1.0, suggestions[0].Confidence, 1e-9)
	})

	t.Run("empty name", func(t *testing.T) {
		matcher := NewMatcherService(store, DefaultMatcherOptions())
		suggestions, err := matcher.Suggest(ctx, "   ", 0)
		require.NoError(t, err)
		assert.Empty(t, suggestions)
	})
}

func TestMatcherService_Classify(t *testing.T) {
	matcher := NewMatcherService(mocks.NewStore(), DefaultMatcherOptions())

	t.Run("single candidate", func(t *testing.T) {
		err := matcher.Classify("x", []entities.Suggestion{{MemberID: 1, Confidence: 0.9}})
		assert.NoError(t, err)
	})

	t.Run("clear winner", func(t *testing.T) {
		err := matcher.Classify("x", []entities.Suggestion{
			{MemberID: 1, Confidence: 0.95},
			{MemberID: 2, Confidence: 0.80},
		})
		assert.NoError(t, err)
	})

	t.Run("close candidates", func(t *testing.T) {
		err := matcher.Classify("nightowlc", []entities.Suggestion{
			{MemberID: 1, Confidence: 0.90},
			{MemberID: 2, Confidence: 0.87},
			{MemberID: 3, Confidence: 0.70},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, entities.ErrAmbiguousMatch))

		var ambiguous *entities.AmbiguousMatchError
		require.ErrorAs(t, err, &ambiguous)
		assert.Equal(t, "nightowlc", ambiguous.RawName)
		assert.Len(t, ambiguous.Candidates, 2)
	})
}

func TestMatcherService_SuggestFrom(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Night Owl", testSeen)
	matcher := NewMatcherService(store, DefaultMatcherOptions())

	cands, err := matcher.LoadCandidates(ctx)
	require.NoError(t, err)
	store.AddMember(2, "nightowls", testSeen)

	snapshot := matcher.SuggestFrom(cands, "nightowls", 0)
	require.Len(t, snapshot, 1)
	assert.Equal(t, int64(1), snapshot[0].MemberID)

	fresh, err := matcher.Suggest(ctx, "nightowls", 0)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, int64(2), fresh[0].MemberID)

	assert.Nil(t, matcher.SuggestFrom(nil, "nightowls", 0))
	assert.Nil(t, matcher.SuggestFrom(cands, " - ", 0))
}

func TestMatcherService_LoadCandidates_StoreError(t *testing.T) {
	failing := mocks.NewStore()
	failing.Err = errors.New("db closed")

	_, err := NewMatcherService(failing, DefaultMatcherOptions()).LoadCandidates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing members")
}
