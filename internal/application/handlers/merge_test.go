package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/services"
)

func TestMergeHandler_HandlePair(t *testing.T) {
	svc := newTestServices()
	svc.store.AddMember(6359, "Jake STL 314", testSeen)
	svc.store.AddMember(131, "jake stl", testSeen)

	handler := NewMergeHandler(svc.merger)

	report, err := handler.HandlePair(context.Background(), 6359, 131, services.LinkOptions{})
	require.NoError(t, err)
	require.Len(t, report.Merged, 1)
	assert.Equal(t, int64(131), report.Merged[0].AbsorbID)
	assert.NotNil(t, report.Relink)

	_, err = handler.HandlePair(context.Background(), 6359, 131, services.LinkOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrMergeIntegrity))
}

func TestMergeHandler_HandlePlan(t *testing.T) {
	svc := newTestServices()
	svc.store.AddMember(1, "A", testSeen)
	svc.store.AddMember(2, "B", testSeen)
	svc.store.AddMember(3, "C", testSeen)

	handler := NewMergeHandler(svc.merger)

	t.Run("invalid plan is rejected", func(t *testing.T) {
		path := writeFile(t, "plan.csv", "keep,absorb\n1,2\n3,3\n")
		result, err := handler.HandlePlan(context.Background(), path, MergePlanOptions{})
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 3, result.Errors[0].Line)
		assert.Nil(t, result.Report)
		assert.Len(t, svc.store.Members, 3)
	})

	t.Run("dry run", func(t *testing.T) {
		path := writeFile(t, "plan.yaml", "- keep: 1\n  absorb: 2\n")
		result, err := handler.HandlePlan(context.Background(), path, MergePlanOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, []entities.MergePair{{KeepID: 1, AbsorbID: 2}}, result.Pairs)
		assert.Nil(t, result.Report)
	})

	t.Run("applied", func(t *testing.T) {
		path := writeFile(t, "plan.json", `[{"keep": 1, "absorb": 2}, {"keep": 1, "absorb": 42}, {"keep": 1, "absorb": 3}]`)
		result, err := handler.HandlePlan(context.Background(), path, MergePlanOptions{})
		require.NoError(t, err)
		require.NotNil(t, result.Report)
		assert.Len(t, result.Report.Merged, 2)
		assert.Len(t, result.Report.Failed, 1)
		assert.Len(t, svc.store.Members, 1)
	})
}

func TestMergeHandler_Duplicates(t *testing.T) {
	svc := newTestServices()
	svc.store.AddMember(1, "Night Owl", testSeen)
	svc.store.AddMember(2, "night-owl", testSeen)

	candidates, err := NewMergeHandler(svc.merger).Duplicates(context.Background())

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(1), candidates[0].MemberA)
}
