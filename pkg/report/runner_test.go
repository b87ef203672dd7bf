package report

import (
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/config"
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

func testRunner(t *testing.T) (*Runner, *store.Store) {
	t.Helper()
	st := testStore(t)
	return NewRunner(st, zap.NewNop()), st
}

func seedUsers(t *testing.T, st *store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status := "Enabled"
		if i%5 == 0 {
			status = "Disabled"
		}
		_, err := st.UpsertUser(t.Context(), &store.User{
			ID:                fmt.Sprintf("u%03d", i),
			DisplayName:       fmt.Sprintf("User %03d", i),
			UserPrincipalName: fmt.Sprintf("user%03d@contoso.com", i),
			Department:        "Engineering",
			SignInStatus:      status,
			LicenseStatus:     "Licensed",
		})
		require.NoError(t, err)
	}
}

func TestRunPaginates(t *testing.T) {
	r, st := testRunner(t)
	seedUsers(t, st, 45)

	def := mustLookup(t, "users", "all")

	page, err := r.Run(t.Context(), def, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 45, page.TotalRecords)
	assert.Len(t, page.Records, 20)

	page, err = r.Run(t.Context(), def, url.Values{"page": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Len(t, page.Records, 5)
}

func TestRunFullExport(t *testing.T) {
	r, st := testRunner(t)
	seedUsers(t, st, 45)

	def := mustLookup(t, "users", "all")

	page, err := r.Run(t.Context(), def, url.Values{"page": {"all"}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 45, page.TotalRecords)
	assert.Len(t, page.Records, 45)
}

func TestRunEnforcedFilter(t *testing.T) {
	r, st := testRunner(t)
	seedUsers(t, st, 20)

	def := mustLookup(t, "users", "disabled")

	page, err := r.Run(t.Context(), def, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalRecords)
	for _, rec := range page.Records {
		assert.Equal(t, "Disabled", rec["signInStatus"])
	}
}

func TestRunCoercesBooleanColumns(t *testing.T) {
	r, st := testRunner(t)

	_, err := st.UpsertGroup(t.Context(), &store.Group{
		ID:              "g1",
		DisplayName:     "Core Security",
		GroupTypes:      "Security",
		Visibility:      "Security",
		SecurityEnabled: true,
		MailEnabled:     false,
	})
	require.NoError(t, err)

	def := mustLookup(t, "groups", "all")

	page, err := r.Run(t.Context(), def, url.Values{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, true, page.Records[0]["securityEnabled"])
	assert.Equal(t, false, page.Records[0]["mailEnabled"])
}

func TestRunJoinedReport(t *testing.T) {
	r, st := testRunner(t)

	_, err := st.UpsertGroup(t.Context(), &store.Group{
		ID:          "g1",
		DisplayName: "Platform",
		GroupTypes:  "Unified",
		Mail:        "platform@contoso.com",
	})
	require.NoError(t, err)

	require.NoError(t, st.UpsertGroupMember(t.Context(), &store.GroupAssociate{
		GroupID:           "g1",
		UserID:            "u1",
		DisplayName:       "Dana Reyes",
		UserPrincipalName: "dana@contoso.com",
		Department:        "Platform",
		SignInStatus:      "Enabled",
	}))

	def := mustLookup(t, "groups", "members")

	page, err := r.Run(t.Context(), def, url.Values{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	rec := page.Records[0]
	assert.Equal(t, "Dana Reyes", rec["memberName"])
	assert.Equal(t, "Platform", rec["groupName"])
	assert.Equal(t, "platform@contoso.com", rec["mail"])
}

func TestRunTeamsWithoutDescription(t *testing.T) {
	r, st := testRunner(t)

	for _, tc := range []struct{ id, desc string }{
		{"t1", ""},
		{"t2", "   "},
		{"t3", "documented"},
	} {
		_, err := st.UpsertTeam(t.Context(), &store.Team{
			ID:          tc.id,
			DisplayName: "Team " + tc.id,
			Visibility:  "Private",
		})
		require.NoError(t, err)
		require.NoError(t, st.UpdateTeamDetails(t.Context(), tc.id, &store.TeamDetails{
			Description: tc.desc,
		}))
	}

	def := mustLookup(t, "teams", "teams-without-description")

	page, err := r.Run(t.Context(), def, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalRecords)
	for _, rec := range page.Records {
		assert.NotEqual(t, "t3", rec["id"])
	}
}

func TestDump(t *testing.T) {
	r, st := testRunner(t)
	seedUsers(t, st, 3)

	records, err := r.Dump(t.Context(), "users")
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = r.Dump(t.Context(), "sync_logs; DROP TABLE users")
	assert.Error(t, err)
}
