package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/mocks"
)

func newTestMerger(store *mocks.Store) *MergerService {
	return NewMergerService(store, newTestLinker(store), zerolog.Nop())
}

func TestMergerService_Merge(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(6359, "Jake STL 314", testSeen)
	store.AddMember(131, "jake stl", testSeen.AddDate(0, 2, 0))
	addAlias(t, store, 6359, "jake stl 314", entities.SourceStats)
	addAlias(t, store, 131, "jakestl", entities.SourceChat)
	addAlias(t, store, 131, "jake_stl", entities.SourceStats)

	for _, r := range []entities.DependentRecord{statRecord(1, "jake_stl"), chatRecord(2, "jakestl"), statRecord(3, "jake stl 314")} {
		r.MemberID = int64Ptr(131)
		if r.ID == 3 {
			r.MemberID = int64Ptr(6359)
		}
		store.PutRecord(r)
	}

	aliasesBefore, err := store.CountAliases(ctx)
	require.NoError(t, err)

	report, err := newTestMerger(store).Merge(ctx, 6359, 131)
	require.NoError(t, err)
	assert.Equal(t, int64(6359), report.KeepID)
	assert.Equal(t, int64(131), report.AbsorbID)
	assert.Equal(t, "jake stl", report.AbsorbName)
	assert.Equal(t, 2, report.AliasesMoved)
	assert.Equal(t, 2, report.RecordsRelinked)

	absorbed, err := store.FindMemberByID(ctx, 131)
	require.NoError(t, err)
	assert.Nil(t, absorbed)

	kept, err := store.FindMemberByID(ctx, 6359)
	require.NoError(t, err)
	assert.Equal(t, testSeen.AddDate(0, 2, 0), kept.LastSeenAt)

	records, err := store.ListRecordsByMember(ctx, 6359, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	aliasesAfter, err := store.CountAliases(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, aliasesAfter, aliasesBefore)

	// Both stats spellings now belong to the kept member; only one is preferred.
	aliases, err := store.ListAliases(ctx, 6359)
	require.NoError(t, err)
	preferred := make(map[entities.Source]int)
	for _, a := range aliases {
		if a.Preferred {
			preferred[a.Source]++
		}
	}
	assert.Equal(t, 1, preferred[entities.SourceStats])
	assert.Equal(t, 1, preferred[entities.SourceChat])
}

func TestMergerService_Merge_Integrity(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Jake", testSeen)

	merger := newTestMerger(store)

	_, err := merger.Merge(ctx, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrMergeIntegrity))

	_, err = merger.Merge(ctx, 1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrMergeIntegrity))
	assert.Contains(t, err.Error(), "merging 2 into 1")

	count, err := store.CountMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMergerService_ApplyMergePlan(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Night Owl", testSeen)
	store.AddMember(2, "Nite Owl", testSeen)
	addAlias(t, store, 2, "nightowl", entities.SourceStats)

	pairs := []entities.MergePair{
		{KeepID: 1, AbsorbID: 1},
		{KeepID: 1, AbsorbID: 2},
		{KeepID: 1, AbsorbID: 99},
	}

	result, err := newTestMerger(store).ApplyMergePlan(ctx, pairs, LinkOptions{})
	require.NoError(t, err)

	require.Len(t, result.Merged, 1)
	assert.Equal(t, int64(2), result.Merged[0].AbsorbID)

	require.Len(t, result.Failed, 2)
	assert.Equal(t, entities.MergePair{KeepID: 1, AbsorbID: 1}, result.Failed[0].Pair)
	assert.True(t, errors.Is(result.Failed[1].Err, entities.ErrMergeIntegrity))

	require.NotNil(t, result.Relink)
	assert.Equal(t, 0, result.Relink.Scanned)
}

func TestMergerService_ApplyMergePlan_RelinksResolvedNames(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Night Owl", testSeen)
	store.AddMember(2, "Nite Owl", testSeen)
	store.PutRecord(statRecord(10, "Night_Owl"))

	linker := newTestLinker(store)
	report, err := linker.RelinkAll(ctx, LinkOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Unresolved)

	// An operator confirms the alias on the absorbed member, then merges.
	addAlias(t, store, 2, "nightowl", entities.SourceStats)
	merger := NewMergerService(store, linker, zerolog.Nop())

	result, err := merger.ApplyMergePlan(ctx, []entities.MergePair{{KeepID: 1, AbsorbID: 2}}, LinkOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Relink)
	assert.Equal(t, 1, result.Relink.Linked)

	rec, err := store.FindRecordByID(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, rec.MemberID)
	assert.Equal(t, int64(1), *rec.MemberID)
	assert.Empty(t, store.Unresolved)
}

func TestMergerService_ApplyMergePlan_NoLinker(t *testing.T) {
	store := mocks.NewStore()
	store.AddMember(1, "A", testSeen)
	store.AddMember(2, "B", testSeen)

	result, err := NewMergerService(store, nil, zerolog.Nop()).ApplyMergePlan(context.Background(), []entities.MergePair{{KeepID: 1, AbsorbID: 2}}, LinkOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Merged, 1)
	assert.Nil(t, result.Relink)
}

func TestMergerService_ApplyMergePlan_Cancelled(t *testing.T) {
	store := mocks.NewStore()
	store.AddMember(1, "A", testSeen)
	store.AddMember(2, "B", testSeen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestMerger(store).ApplyMergePlan(ctx, []entities.MergePair{{KeepID: 1, AbsorbID: 2}}, LinkOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Merged)

	count, err := store.CountMembers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMergerService_DetectDuplicates(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Night Owl", testSeen)
	store.AddMember(2, "night_owl", testSeen)
	store.AddMember(3, "Zed", testSeen)
	store.AddMember(4, "Shadow", testSeen)
	store.AddMember(5, "Ghost A", testSeen)
	store.AddMember(6, "Ghost B", testSeen)
	store.AddMember(7, "Loner", testSeen)
	addAlias(t, store, 3, "shadow", entities.SourceStats)
	addAlias(t, store, 5, "spooky", entities.SourceStats)
	addAlias(t, store, 6, "Spooky", entities.SourceChat)
	addAlias(t, store, 7, "loner", entities.SourceStats)

	candidates, err := newTestMerger(store).DetectDuplicates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, int64(1), candidates[0].MemberA)
	assert.Equal(t, int64(2), candidates[0].MemberB)
	assert.Equal(t, []entities.DuplicateReason{entities.DuplicateDisplayName}, candidates[0].Reasons)

	assert.Equal(t, int64(3), candidates[1].MemberA)
	assert.Equal(t, int64(4), candidates[1].MemberB)
	assert.Equal(t, "Zed", candidates[1].NameA)
	assert.Equal(t, "Shadow", candidates[1].NameB)
	assert.Equal(t, []entities.DuplicateReason{entities.DuplicateAliasOverlap}, candidates[1].Reasons)
	assert.Equal(t, []string{"shadow"}, candidates[1].SharedKeys)

	assert.Equal(t, int64(5), candidates[2].MemberA)
	assert.Equal(t, int64(6), candidates[2].MemberB)
	assert.Equal(t, []string{"spooky"}, candidates[2].SharedKeys)
}
