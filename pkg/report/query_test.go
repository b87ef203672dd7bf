package report

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLookup(t *testing.T, resource, name string) *Definition {
	t.Helper()
	def, err := Lookup(resource, name)
	require.NoError(t, err)
	return def
}

func TestBuildWhere_SearchExpandsAcrossFields(t *testing.T) {
	def := mustLookup(t, "users", "all")

	where, args := buildWhere(def, url.Values{"search": {"smith"}}, time.Now())

	assert.Equal(t,
		"WHERE (displayName LIKE ? OR userPrincipalName LIKE ? OR firstName LIKE ? OR lastName LIKE ? OR mailNickName LIKE ? OR email LIKE ?)",
		where)
	require.Len(t, args, 6)
	for _, a := range args {
		assert.Equal(t, "%smith%", a)
	}
}

func TestBuildWhere_GUIDSearchTargetsID(t *testing.T) {
	guid := "4be27fcf-07a4-40e4-bca4-1f0ff0f1b376"

	groups := mustLookup(t, "groups", "all")
	where, args := buildWhere(groups, url.Values{"search": {guid}}, time.Now())
	assert.Equal(t, "WHERE id = ?", where)
	assert.Equal(t, []any{guid}, args)

	// Partial GUID-shaped input falls back to substring id matching on teams.
	teams := mustLookup(t, "teams", "all")
	where, args = buildWhere(teams, url.Values{"search": {"4be27fcf-07a4"}}, time.Now())
	assert.Equal(t, "WHERE id LIKE ?", where)
	assert.Equal(t, []any{"%4be27fcf-07a4%"}, args)

	// Plain text still searches displayName.
	where, args = buildWhere(teams, url.Values{"search": {"engineering"}}, time.Now())
	assert.Equal(t, "WHERE displayName LIKE ?", where)
	assert.Equal(t, []any{"%engineering%"}, args)
}

func TestBuildWhere_VisibilityNormalized(t *testing.T) {
	def := mustLookup(t, "teams", "all")

	where, args := buildWhere(def, url.Values{"visibility": {"hiddenmembership"}}, time.Now())

	assert.Equal(t, "WHERE LOWER(visibility) = LOWER(?)", where)
	assert.Equal(t, []any{"HiddenMembership"}, args)
}

func TestBuildWhere_BoolFilterCoercion(t *testing.T) {
	def := mustLookup(t, "teams", "all")

	_, args := buildWhere(def, url.Values{"isArchived": {"true"}}, time.Now())
	assert.Equal(t, []any{1}, args)

	_, args = buildWhere(def, url.Values{"isArchived": {"false"}}, time.Now())
	assert.Equal(t, []any{0}, args)
}

func TestBuildWhere_MembersCountCoercion(t *testing.T) {
	def := mustLookup(t, "groups", "distribution")

	where, args := buildWhere(def, url.Values{"membersCount": {"true"}}, time.Now())
	assert.Equal(t, "WHERE groupTypes = ? AND membersCount > 0", where)
	assert.Equal(t, []any{"Distribution"}, args)

	where, _ = buildWhere(def, url.Values{"membersCount": {"false"}}, time.Now())
	assert.Contains(t, where, "membersCount = 0")
}

func TestBuildWhere_EnforcedFilterOverridesRequest(t *testing.T) {
	def := mustLookup(t, "users", "disabled")

	where, args := buildWhere(def, url.Values{"signInStatus": {"Enabled"}}, time.Now())

	assert.Contains(t, where, "signInStatus = ?")
	assert.Contains(t, args, "Disabled")
	assert.NotContains(t, args, "Enabled")
}

func TestBuildWhere_MultiInDefaults(t *testing.T) {
	def := mustLookup(t, "groups", "security-enabled")

	where, args := buildWhere(def, url.Values{}, time.Now())
	assert.Equal(t, "WHERE groupTypes IN (?, ?)", where)
	assert.Equal(t, []any{"Security", "Mail-enabled Security"}, args)

	where, args = buildWhere(def, url.Values{"groupTypes": {"Security"}}, time.Now())
	assert.Equal(t, "WHERE groupTypes IN (?)", where)
	assert.Equal(t, []any{"Security"}, args)
}

func TestBuildWhere_RecentWindow(t *testing.T) {
	def := mustLookup(t, "groups", "recently-created")
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	where, args := buildWhere(def, url.Values{}, now)

	assert.Equal(t, "WHERE createdDateTime >= ?", where)
	require.Len(t, args, 1)
	assert.Equal(t, "2026-08-02T12:00:00Z", args[0])
}

func TestBuildWhere_FixedConditions(t *testing.T) {
	teams := mustLookup(t, "teams", "teams-private-channels")
	where, args := buildWhere(teams, url.Values{}, time.Now())
	assert.Equal(t, "WHERE privateChannelsCount > 0", where)
	assert.Empty(t, args)

	noDesc := mustLookup(t, "teams", "teams-without-description")
	where, _ = buildWhere(noDesc, url.Values{}, time.Now())
	assert.Contains(t, where, "TRIM(description) = ''")
}

func TestNormalizeVisibility(t *testing.T) {
	assert.Equal(t, "Public", normalizeVisibility("public"))
	assert.Equal(t, "Private", normalizeVisibility("PRIVATE"))
	assert.Equal(t, "HiddenMembership", normalizeVisibility("hiddenmembership"))
	assert.Equal(t, "Custom", normalizeVisibility("Custom"))
}

func TestDefinitionHeaders(t *testing.T) {
	def := mustLookup(t, "groups", "members")

	headers := def.Headers()

	assert.Equal(t, []string{
		"memberName", "userPrincipalName", "department", "jobTitle",
		"signInStatus", "groupName", "mail", "id", "groupTypes",
	}, headers)
}

func TestLookupUnknownReport(t *testing.T) {
	_, err := Lookup("users", "nope")
	assert.Error(t, err)

	assert.NotEmpty(t, Names("users"))
	assert.NotEmpty(t, Names("groups"))
	assert.NotEmpty(t, Names("teams"))
}
