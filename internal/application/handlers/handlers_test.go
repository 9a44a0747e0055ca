package handlers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/clanid/internal/domain/mocks"
	"github.com/ersonp/clanid/internal/domain/services"
)

var testSeen = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testServices wires the services over one mock store.
type testServices struct {
	store   *mocks.Store
	matcher *services.MatcherService
	linker  *services.LinkerService
	merger  *services.MergerService
}

func newTestServices() *testServices {
	store := mocks.NewStore()
	matcher := services.NewMatcherService(store, services.DefaultMatcherOptions())
	linker := services.NewLinkerService(store, store, matcher, zerolog.Nop())
	return &testServices{
		store:   store,
		matcher: matcher,
		linker:  linker,
		merger:  services.NewMergerService(store, linker, zerolog.Nop()),
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
