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

func newTestLinker(store *mocks.Store) *LinkerService {
	matcher := NewMatcherService(store, DefaultMatcherOptions())
	return NewLinkerService(store, store, matcher, zerolog.Nop())
}

func int64Ptr(v int64) *int64 {
	return &v
}

func statRecord(id int64, rawName string) entities.DependentRecord {
	return entities.DependentRecord{
		ID:         id,
		Kind:       entities.KindStatSnapshot,
		ExternalID: "stat-" + rawName,
		RawName:    rawName,
		Source:     entities.SourceStats,
		ObservedAt: testSeen,
	}
}

func chatRecord(id int64, rawName string) entities.DependentRecord {
	return entities.DependentRecord{
		ID:         id,
		Kind:       entities.KindChatMessage,
		ExternalID: "chat-" + rawName,
		RawName:    rawName,
		Source:     entities.SourceChat,
		ObservedAt: testSeen,
	}
}

// seedRelinkStore builds a store with one known member and five records:
// unlinked, orphaned, unknown name, already linked, and empty name.
func seedRelinkStore(t *testing.T) *mocks.Store {
	t.Helper()
	store := mocks.NewStore()
	store.AddMember(1, "Jake STL 314", testSeen)
	addAlias(t, store, 1, "jake stl 314", entities.SourceStats)

	orphan := chatRecord(2, "Jake STL 314")
	orphan.MemberID = int64Ptr(42)
	linked := statRecord(4, "JakeSTL314")
	linked.ExternalID = "stat-linked"
	linked.MemberID = int64Ptr(1)

	store.PutRecord(statRecord(1, "jake stl 314"))
	store.PutRecord(orphan)
	store.PutRecord(statRecord(3, "zed"))
	store.PutRecord(linked)
	store.PutRecord(chatRecord(5, " - "))
	return store
}

func TestLinkerService_Link(t *testing.T) {
	ctx := context.Background()

	t.Run("exact alias", func(t *testing.T) {
		store := mocks.NewStore()
		store.AddMember(1, "Jake STL 314", testSeen)
		addAlias(t, store, 1, "jake stl 314", entities.SourceStats)
		rec := statRecord(7, "Jake-STL-314")
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{})
		require.NoError(t, err)
		assert.Equal(t, entities.Linked(1), outcome)
		require.NotNil(t, rec.MemberID)
		assert.Equal(t, int64(1), *rec.MemberID)

		stored, err := store.FindRecordByID(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, stored.MemberID)
		assert.Equal(t, int64(1), *stored.MemberID)
		assert.NotNil(t, stored.LinkedAt)
	})

	t.Run("cross source records a new alias", func(t *testing.T) {
		store := mocks.NewStore()
		store.AddMember(1, "Jake STL 314", testSeen)
		addAlias(t, store, 1, "jake stl 314", entities.SourceStats)
		rec := chatRecord(7, "JakeSTL314")
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{})
		require.NoError(t, err)
		assert.True(t, outcome.Linked)

		aliases, err := store.ListAliases(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, aliases, 2)
	})

	t.Run("unknown name stays unresolved", func(t *testing.T) {
		store := mocks.NewStore()
		rec := statRecord(7, "zed")
		store.PutRecord(rec)
		linker := newTestLinker(store)

		outcome, err := linker.Link(ctx, &rec, LinkOptions{})
		require.NoError(t, err)
		assert.Equal(t, entities.Skipped(entities.SkipUnresolved), outcome)
		assert.Nil(t, rec.MemberID)

		// A second pass over the same record does not inflate the count.
		_, err = linker.Link(ctx, &rec, LinkOptions{})
		require.NoError(t, err)

		unresolved, err := store.ListUnresolved(ctx, 0)
		require.NoError(t, err)
		require.Len(t, unresolved, 1)
		assert.Equal(t, "zed", unresolved[0].NormalizedKey)
		assert.Equal(t, 1, unresolved[0].Occurrences)
	})

	t.Run("create identity when nothing is close", func(t *testing.T) {
		store := mocks.NewStore()
		rec := statRecord(7, "Zed Shadow")
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{CreateIdentities: true})
		require.NoError(t, err)
		assert.True(t, outcome.Linked)
		assert.True(t, outcome.Created)

		m, err := store.FindMemberByID(ctx, outcome.MemberID)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "Zed Shadow", m.DisplayName)
	})

	t.Run("suggestions block identity creation", func(t *testing.T) {
		store := mocks.NewStore()
		store.AddMember(1, "Night Owl", testSeen)
		rec := statRecord(7, "nightowls")
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{CreateIdentities: true})
		require.NoError(t, err)
		assert.Equal(t, entities.Skipped(entities.SkipUnresolved), outcome)

		count, err := store.CountMembers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		unresolved, err := store.ListUnresolved(ctx, 0)
		require.NoError(t, err)
		require.Len(t, unresolved, 1)
		require.Len(t, unresolved[0].Candidates, 1)
		assert.Equal(t, int64(1), unresolved[0].Candidates[0].MemberID)
	})

	t.Run("close candidates are ambiguous", func(t *testing.T) {
		store := mocks.NewStore()
		store.AddMember(1, "nightowla", testSeen)
		store.AddMember(2, "nightowlb", testSeen)
		rec := statRecord(7, "nightowlc")
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{CreateIdentities: true})
		require.NoError(t, err)
		assert.Equal(t, entities.Skipped(entities.SkipAmbiguous), outcome)
		assert.Nil(t, rec.MemberID)
	})

	t.Run("empty name", func(t *testing.T) {
		store := mocks.NewStore()
		rec := chatRecord(7, " _ ")
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{CreateIdentities: true})
		require.NoError(t, err)
		assert.Equal(t, entities.Skipped(entities.SkipEmptyName), outcome)
		assert.Empty(t, store.Unresolved)
	})

	t.Run("already linked", func(t *testing.T) {
		store := mocks.NewStore()
		store.AddMember(1, "Jake", testSeen)
		rec := statRecord(7, "someone else")
		rec.MemberID = int64Ptr(1)
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{})
		require.NoError(t, err)
		assert.Equal(t, entities.Skipped(entities.SkipAlreadyLinked), outcome)
	})

	t.Run("orphaned reference is relinked", func(t *testing.T) {
		store := mocks.NewStore()
		store.AddMember(1, "Jake STL 314", testSeen)
		addAlias(t, store, 1, "jake stl 314", entities.SourceStats)
		rec := statRecord(7, "jake stl 314")
		rec.MemberID = int64Ptr(99)
		store.PutRecord(rec)

		outcome, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{})
		require.NoError(t, err)
		assert.Equal(t, entities.Linked(1), outcome)

		orphans, err := store.FindOrphanedRecords(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, orphans)
	})

	t.Run("member last seen advances", func(t *testing.T) {
		store := mocks.NewStore()
		store.AddMember(1, "Jake", testSeen)
		addAlias(t, store, 1, "jake", entities.SourceStats)
		rec := statRecord(7, "jake")
		rec.ObservedAt = testSeen.AddDate(0, 1, 0)
		store.PutRecord(rec)

		_, err := newTestLinker(store).Link(ctx, &rec, LinkOptions{})
		require.NoError(t, err)

		m, err := store.FindMemberByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, rec.ObservedAt, m.LastSeenAt)
	})
}

func TestLinkerService_RelinkAll(t *testing.T) {
	ctx := context.Background()
	store := seedRelinkStore(t)
	linker := newTestLinker(store)

	report, err := linker.RelinkAll(ctx, LinkOptions{BatchSize: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 2, report.Linked)
	assert.Equal(t, 1, report.Unresolved)
	assert.Equal(t, 1, report.EmptyName)
	assert.Equal(t, 1, report.Repaired)
	assert.Empty(t, report.Errors)
	assert.False(t, report.Partial)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	linked, err := store.ListRecordsByMember(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, linked, 3)

	repaired, err := store.FindAuditLogByAction(ctx, entities.ActionRecordsRepaired, 0)
	require.NoError(t, err)
	require.Len(t, repaired, 1)
	assert.Equal(t, report.RunID, repaired[0].Details["run_id"])
}

func TestLinkerService_RelinkAll_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := seedRelinkStore(t)
	linker := newTestLinker(store)

	snapshot := func() map[int64]*int64 {
		links := make(map[int64]*int64, len(store.Records))
		for id, rec := range store.Records {
			links[id] = rec.MemberID
			if rec.MemberID != nil {
				links[id] = int64Ptr(*rec.MemberID)
			}
		}
		return links
	}

	_, err := linker.RelinkAll(ctx, LinkOptions{})
	require.NoError(t, err)
	afterFirst := snapshot()

	second, err := linker.RelinkAll(ctx, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Scanned)
	assert.Equal(t, 0, second.Linked)
	assert.Equal(t, 0, second.Repaired)
	assert.Equal(t, afterFirst, snapshot())
	assert.Equal(t, int64Ptr(1), afterFirst[1])
	assert.Equal(t, int64Ptr(1), afterFirst[2])
	assert.Nil(t, afterFirst[3])

	unresolved, err := store.ListUnresolved(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, 1, unresolved[0].Occurrences)
}

func TestLinkerService_RelinkAll_Workers(t *testing.T) {
	ctx := context.Background()

	sequential, err := newTestLinker(seedRelinkStore(t)).RelinkAll(ctx, LinkOptions{Workers: 1})
	require.NoError(t, err)

	parallelStore := seedRelinkStore(t)
	parallel, err := newTestLinker(parallelStore).RelinkAll(ctx, LinkOptions{Workers: 2, BatchSize: 1})
	require.NoError(t, err)

	assert.Equal(t, sequential.Scanned, parallel.Scanned)
	assert.Equal(t, sequential.Linked, parallel.Linked)
	assert.Equal(t, sequential.Unresolved, parallel.Unresolved)
	assert.Equal(t, sequential.EmptyName, parallel.EmptyName)
	assert.Equal(t, sequential.Repaired, parallel.Repaired)

	total, linked, err := parallelStore.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, linked)
}

func TestLinkerService_RelinkAll_LoadsCandidatesOnce(t *testing.T) {
	store := mocks.NewStore()
	store.AddMember(1, "Jake STL 314", testSeen)
	addAlias(t, store, 1, "jake stl 314", entities.SourceStats)
	for i, name := range []string{"zed", "quill", "bramble", "oxide"} {
		store.PutRecord(chatRecord(int64(i+1), name))
	}

	report, err := newTestLinker(store).RelinkAll(context.Background(), LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Unresolved)
	assert.Equal(t, 1, store.AliasListings)
}

func TestLinkerService_RelinkAll_CreatedMemberVisibleToLaterRecords(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.PutRecord(statRecord(1, "zedd"))
	store.PutRecord(statRecord(2, "zeddd"))

	report, err := newTestLinker(store).RelinkAll(ctx, LinkOptions{CreateIdentities: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 1, report.Unresolved)

	unresolved, err := store.ListUnresolved(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "zeddd", unresolved[0].NormalizedKey)
	require.Len(t, unresolved[0].Candidates, 1)
	assert.Equal(t, "zedd", unresolved[0].Candidates[0].DisplayName)
}

func TestLinkerService_RelinkAll_SourceFilter(t *testing.T) {
	store := seedRelinkStore(t)

	report, err := newTestLinker(store).RelinkAll(context.Background(), LinkOptions{Source: entities.SourceChat})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 1, report.EmptyName)
}

func TestLinkerService_RelinkAll_RecordErrors(t *testing.T) {
	store := seedRelinkStore(t)
	store.RecordErrs[1] = errors.New("disk full")

	report, err := newTestLinker(store).RelinkAll(context.Background(), LinkOptions{})
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, int64(1), report.Errors[0].RecordID)
	assert.Contains(t, report.Errors[0].Message, "disk full")
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Linked)
}

func TestLinkerService_RelinkAll_Cancelled(t *testing.T) {
	store := seedRelinkStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestLinker(store).RelinkAll(ctx, LinkOptions{})
	require.NoError(t, err)
	assert.True(t, report.Partial)
	assert.Equal(t, 0, report.Scanned)

	// Nothing was written, so a later pass picks everything up.
	needing, err := store.ListRecordsNeedingLink(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, needing, 4)
}

func TestLinkerService_RelinkAll_ListError(t *testing.T) {
	store := seedRelinkStore(t)
	store.Err = errors.New("db closed")

	_, err := newTestLinker(store).RelinkAll(context.Background(), LinkOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing records")
}

func TestLinkerService_Ingest(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Jake STL 314", testSeen)
	addAlias(t, store, 1, "jake stl 314", entities.SourceStats)
	linker := newTestLinker(store)

	batch := func() []entities.DependentRecord {
		return []entities.DependentRecord{
			{Kind: entities.KindStatSnapshot, ExternalID: "s1", RawName: "jake_stl_314", ObservedAt: testSeen},
			{Kind: entities.KindChatMessage, ExternalID: "c1", RawName: "Zed", ObservedAt: testSeen},
		}
	}

	first, err := linker.Ingest(ctx, batch(), LinkOptions{CreateIdentities: true})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 2, first.Linked)
	assert.Equal(t, 1, first.Created)

	second, err := linker.Ingest(ctx, batch(), LinkOptions{CreateIdentities: true})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, second.AlreadyLinked)
	assert.Equal(t, 0, second.Created)

	count, err := store.CountMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLinkerService_Ingest_RenamedRecordLeavesNoStaleUnresolved(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.AddMember(1, "Jake STL 314", testSeen)
	addAlias(t, store, 1, "jake stl 314", entities.SourceStats)
	linker := newTestLinker(store)

	record := func(rawName string) []entities.DependentRecord {
		return []entities.DependentRecord{
			{Kind: entities.KindChatMessage, ExternalID: "m1", RawName: rawName, ObservedAt: testSeen},
		}
	}

	first, err := linker.Ingest(ctx, record("zzqx"), LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Unresolved)

	unresolved, err := store.ListUnresolved(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "zzqx", unresolved[0].NormalizedKey)

	second, err := linker.Ingest(ctx, record("jakestl314"), LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Linked)

	total, linked, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, linked)

	unresolved, err = store.ListUnresolved(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestLinkerService_Ingest_InvalidRecord(t *testing.T) {
	store := mocks.NewStore()
	records := []entities.DependentRecord{{Kind: "tweet", ExternalID: "t1", RawName: "jake"}}

	_, err := newTestLinker(store).Ingest(context.Background(), records, LinkOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing records")
}
