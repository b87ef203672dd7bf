package sync

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/config"
	"codeberg.org/graphmirror/graphmirror/pkg/graph"
	"codeberg.org/graphmirror/graphmirror/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "mirror.db"),
	}
	st, err := store.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.Migrate(t.Context()))
	return st
}

func newTestSyncer(t *testing.T, handler http.Handler, opts ...Option) (*Syncer, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := graph.NewClientWithHTTP(srv.URL, srv.Client(), zap.NewNop())
	st := testStore(t)
	opts = append([]Option{WithWorkers(2)}, opts...)
	return NewSyncer(client, st, zap.NewNop(), opts...), st
}

func lastSyncLog(t *testing.T, st *store.Store, resource string) store.SyncLog {
	t.Helper()
	logs, err := st.SyncLogs(t.Context(), 0)
	require.NoError(t, err)
	for _, l := range logs {
		if l.Resource == resource {
			return l
		}
	}
	t.Fatalf("no sync log for resource %s", resource)
	return store.SyncLog{}
}
