package sync

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/graphmirror/graphmirror/pkg/store"
)

func teamsDeltaHandler(mux *http.ServeMux, deltaBody, token string) {
	mux.HandleFunc("/groups/delta", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":%s,"@odata.deltaLink":"http://%s/groups/delta?$deltatoken=%s"}`, deltaBody, r.Host, token)
	})
}

func TestSyncTeams_NewTeamFullRefresh(t *testing.T) {
	mux := http.NewServeMux()
	teamsDeltaHandler(mux, `[
		{"id":"t1","displayName":"Platform","description":"Infra crew","visibility":"Private",
		 "createdDateTime":"2025-06-01T00:00:00Z","groupTypes":["Unified"],"resourceProvisioningOptions":["Team"]}
	]`, "tm1")

	mux.HandleFunc("/groups/t1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"description":"Infra crew"}`)
	})
	mux.HandleFunc("/teams/t1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"t1","isArchived":false}`)
	})
	mux.HandleFunc("/teams/t1/members", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[
			{"id":"mem-1","userId":"u1","displayName":"Owner One","email":"o1@contoso.com","roles":["owner"]},
			{"id":"mem-2","userId":"u2","displayName":"Member One","email":"m1@contoso.com","roles":[]}
		]}`)
	})
	mux.HandleFunc("/teams/t1/channels", func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("$filter")
		switch {
		case filter == "membershipType eq 'standard'":
			fmt.Fprint(w, `{"value":[{"id":"c1","membershipType":"standard"},{"id":"c2","membershipType":"standard"}]}`)
		case filter == "membershipType eq 'private'":
			fmt.Fprint(w, `{"value":[{"id":"c3","membershipType":"private"}]}`)
		default:
			fmt.Fprint(w, `{"value":[]}`)
		}
	})

	syn, st := newTestSyncer(t, mux)
	ctx := t.Context()

	// Local users mirror provides enrichment for roster rows.
	_, err := st.UpsertUser(ctx, &store.User{
		ID: "u1", UserPrincipalName: "owner.one@contoso.com",
		Department: "Platform", JobTitle: "Staff Engineer", SignInStatus: "Enabled",
	})
	require.NoError(t, err)

	result, err := syn.SyncTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)

	team, err := st.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, team)
	assert.Equal(t, "Infra crew", team.Description)
	assert.False(t, team.IsArchived)
	assert.Equal(t, 1, team.OwnersCount)
	assert.Equal(t, 1, team.MembersCount)
	assert.Equal(t, 2, team.StandardChannelsCount)
	assert.Equal(t, 1, team.PrivateChannelsCount)
	assert.Equal(t, 0, team.SharedChannelsCount)

	owners, err := st.QueryMaps(ctx, `SELECT userId, userPrincipalName, department, jobTitle FROM team_owners WHERE teamId = ?`, "t1")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "u1", owners[0]["userId"])
	assert.Equal(t, "owner.one@contoso.com", owners[0]["userPrincipalName"])
	assert.Equal(t, "Platform", owners[0]["department"])
	assert.Equal(t, "Staff Engineer", owners[0]["jobTitle"])

	members, err := st.QueryMaps(ctx, `SELECT userId, userPrincipalName, role FROM team_members WHERE teamId = ?`, "t1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "u2", members[0]["userId"])
	// Not in the local mirror: falls back to the roster email.
	assert.Equal(t, "m1@contoso.com", members[0]["userPrincipalName"])
	assert.Equal(t, "member", members[0]["role"])

	link, err := st.GetDeltaLink(ctx, ResourceTeams)
	require.NoError(t, err)
	assert.Contains(t, link, "$deltatoken=tm1")
}

func TestSyncTeams_SecondPassIsIdempotent(t *testing.T) {
	mux := http.NewServeMux()
	teamsDeltaHandler(mux, `[
		{"id":"t1","displayName":"Platform","description":"Infra crew","visibility":"Private",
		 "createdDateTime":"2025-06-01T00:00:00Z","groupTypes":["Unified"],"resourceProvisioningOptions":["Team"]}
	]`, "tm-same")
	mux.HandleFunc("/groups/t1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"description":"Infra crew"}`)
	})
	mux.HandleFunc("/teams/t1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"t1","isArchived":false}`)
	})
	mux.HandleFunc("/teams/t1/members", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})
	mux.HandleFunc("/teams/t1/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})

	syn, _ := newTestSyncer(t, mux)
	ctx := t.Context()

	first, err := syn.SyncTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := syn.SyncTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second, "re-observed unchanged teams must not count as updates")
}

func TestSyncTeams_FallbackToGroupRoster(t *testing.T) {
	mux := http.NewServeMux()
	teamsDeltaHandler(mux, `[
		{"id":"t1","displayName":"Legacy","groupTypes":["Unified"],"resourceProvisioningOptions":["Team"]}
	]`, "tm2")

	mux.HandleFunc("/groups/t1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"description":"from group"}`)
	})
	mux.HandleFunc("/teams/t1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"t1","isArchived":true}`)
	})
	mux.HandleFunc("/teams/t1/members", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not licensed", http.StatusForbidden)
	})
	mux.HandleFunc("/teams/t1/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})
	mux.HandleFunc("/groups/t1/owners", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"u1","displayName":"Owner","userPrincipalName":"o@contoso.com"}]}`)
	})
	mux.HandleFunc("/groups/t1/members", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"u2","displayName":"Member","userPrincipalName":"m@contoso.com"}]}`)
	})

	syn, st := newTestSyncer(t, mux)
	ctx := t.Context()

	_, err := syn.SyncTeams(ctx)
	require.NoError(t, err)

	team, err := st.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, team)
	assert.True(t, team.IsArchived)
	assert.Equal(t, "from group", team.Description)
	assert.Equal(t, 1, team.OwnersCount)
	assert.Equal(t, 1, team.MembersCount)

	owners, err := st.QueryMaps(ctx, `SELECT userPrincipalName FROM team_owners WHERE teamId = ?`, "t1")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "o@contoso.com", owners[0]["userPrincipalName"])
}

func TestSyncTeams_TombstoneOnlyDeletesMirroredTeams(t *testing.T) {
	mux := http.NewServeMux()
	teamsDeltaHandler(mux, `[
		{"id":"t1","@removed":{"reason":"deleted"}},
		{"id":"g9","@removed":{"reason":"deleted"}}
	]`, "tm3")

	syn, st := newTestSyncer(t, mux)
	ctx := t.Context()

	_, err := st.UpsertTeam(ctx, &store.Team{ID: "t1", DisplayName: "Doomed"})
	require.NoError(t, err)
	require.NoError(t, st.ReplaceTeamMembers(ctx, "t1", []store.TeamAssociate{
		{TeamID: "t1", UserID: "u1", DisplayName: "Member"},
	}))

	result, err := syn.SyncTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	team, err := st.GetTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, team)

	rows, err := st.QueryMaps(ctx, `SELECT id FROM team_members WHERE teamId = ?`, "t1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSyncTeams_DetailFetchFailureKeepsStoredFlags(t *testing.T) {
	mux := http.NewServeMux()
	teamsDeltaHandler(mux, `[]`, "tm4")
	mux.HandleFunc("/groups/t1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/teams/t1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/teams/t1/members", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})
	mux.HandleFunc("/teams/t1/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})
	mux.HandleFunc("/groups/t1/owners", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})
	mux.HandleFunc("/groups/t1/members", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})

	syn, st := newTestSyncer(t, mux)
	ctx := t.Context()

	_, err := st.UpsertTeam(ctx, &store.Team{
		ID: "t1", DisplayName: "Sturdy", Description: "keep me",
	})
	require.NoError(t, err)
	require.NoError(t, st.UpdateTeamDetails(ctx, "t1", &store.TeamDetails{
		Description: "keep me", IsArchived: true,
	}))

	_, err = syn.SyncTeams(ctx)
	require.NoError(t, err)

	team, err := st.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, team)
	assert.Equal(t, "keep me", team.Description)
	assert.True(t, team.IsArchived)
}
