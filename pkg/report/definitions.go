package report

import (
	"fmt"
	"strings"
)

type filterKind int

const (
	filterExact filterKind = iota
	filterFold             // case-insensitive match
	filterBool             // true/false coerced to 1/0
	filterLike             // substring match
	filterCount            // true/false coerced to > 0 / = 0
)

// Filter maps a request parameter onto a column. Filters apply in
// declaration order so generated SQL stays stable.
type Filter struct {
	Param  string
	Column string
	Kind   filterKind
}

// MultiIn is an IN (...) filter that accepts repeated parameter values and
// falls back to a default set when the parameter is absent.
type MultiIn struct {
	Param   string
	Column  string
	Default []string
}

// Definition is one report: the table (or join) it reads, the columns it
// returns, and the search/filter surface it exposes.
type Definition struct {
	Name       string
	Resource   string
	Base       string   // FROM clause body
	Columns    []string // select expressions in response order
	Search     []string // free-text LIKE fields
	IDColumn   string   // column targeted when the search term is GUID-shaped
	IDExact    bool     // exact id match instead of LIKE
	Filters    []Filter
	Enforce    map[string]string // filter values the report always applies
	MultiIn    *MultiIn
	Conditions []string // fixed WHERE fragments
	RecentDays int      // restrict to rows created within the last N days
	BoolCols   []string // response keys stored as 0/1, surfaced as booleans
}

// Headers returns the response key for each selected column: the alias when
// one is declared, otherwise the column name without its table qualifier.
func (d *Definition) Headers() []string {
	headers := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		if j := strings.LastIndex(strings.ToUpper(col), " AS "); j >= 0 {
			headers[i] = strings.TrimSpace(col[j+4:])
			continue
		}
		if j := strings.LastIndex(col, "."); j >= 0 {
			headers[i] = col[j+1:]
			continue
		}
		headers[i] = col
	}
	return headers
}

var userColumns = []string{
	"displayName", "userPrincipalName", "signInStatus", "licenseStatus",
	"department", "jobTitle", "city", "state", "country",
	"firstName", "lastName", "mailNickName", "email",
}

var userSearch = []string{
	"displayName", "userPrincipalName", "firstName", "lastName", "mailNickName", "email",
}

var userFilters = []Filter{
	{Param: "department", Column: "department", Kind: filterExact},
	{Param: "jobTitle", Column: "jobTitle", Kind: filterExact},
	{Param: "signInStatus", Column: "signInStatus", Kind: filterExact},
	{Param: "licenseStatus", Column: "licenseStatus", Kind: filterExact},
}

func userReport(name string, enforce map[string]string) Definition {
	return Definition{
		Name:     name,
		Resource: "users",
		Base:     "users",
		Columns:  userColumns,
		Search:   userSearch,
		Filters:  userFilters,
		Enforce:  enforce,
	}
}

var groupColumns = []string{
	"displayName", "createdDateTime", "groupTypes", "mail", "id",
	"membersCount", "ownersCount",
}

var groupSearch = []string{"displayName", "mail", "id"}

var teamColumns = []string{
	"id", "displayName", "description", "visibility", "membersCount",
	"ownersCount", "privateChannelsCount", "standardChannelsCount",
	"sharedChannelsCount", "createdDateTime", "isArchived",
}

func teamReport(name string, mutate func(*Definition)) Definition {
	d := Definition{
		Name:     name,
		Resource: "teams",
		Base:     "teams",
		Columns:  teamColumns,
		Search:   []string{"displayName"},
		Filters: []Filter{
			{Param: "visibility", Column: "visibility", Kind: filterFold},
			{Param: "isArchived", Column: "isArchived", Kind: filterBool},
		},
		BoolCols: []string{"isArchived"},
	}
	if mutate != nil {
		mutate(&d)
	}
	return d
}

var definitions = []Definition{
	userReport("all", nil),
	userReport("enabled", map[string]string{"signInStatus": "Enabled"}),
	userReport("disabled", map[string]string{"signInStatus": "Disabled"}),
	userReport("licensed", map[string]string{"licenseStatus": "Licensed"}),
	userReport("unlicensed", map[string]string{"licenseStatus": "Unlicensed"}),

	{
		Name:     "all",
		Resource: "groups",
		Base:     "groups",
		Columns: []string{
			"displayName", "createdDateTime", "groupTypes", "mail", "id",
			"securityEnabled", "mailEnabled", "membersCount", "ownersCount",
		},
		Search:   groupSearch,
		IDColumn: "id",
		IDExact:  true,
		Filters: []Filter{
			{Param: "groupTypes", Column: "groupTypes", Kind: filterFold},
			{Param: "securityEnabled", Column: "securityEnabled", Kind: filterBool},
			{Param: "mailEnabled", Column: "mailEnabled", Kind: filterBool},
		},
		BoolCols: []string{"securityEnabled", "mailEnabled"},
	},
	{
		Name:     "unified",
		Resource: "groups",
		Base:     "groups",
		Columns: []string{
			"displayName", "createdDateTime", "groupTypes", "mail", "id",
			"visibility", "membersCount", "ownersCount",
		},
		Search: groupSearch,
		Filters: []Filter{
			{Param: "visibility", Column: "visibility", Kind: filterFold},
			{Param: "groupTypes", Column: "groupTypes", Kind: filterExact},
			{Param: "membersCount", Column: "membersCount", Kind: filterCount},
		},
		Conditions: []string{"groupTypes LIKE '%Unified%'"},
	},
	{
		Name:     "distribution",
		Resource: "groups",
		Base:     "groups",
		Columns:  groupColumns,
		Search:   groupSearch,
		Filters: []Filter{
			{Param: "groupTypes", Column: "groupTypes", Kind: filterExact},
			{Param: "membersCount", Column: "membersCount", Kind: filterCount},
		},
		Enforce: map[string]string{"groupTypes": "Distribution"},
	},
	{
		Name:     "security-enabled",
		Resource: "groups",
		Base:     "groups",
		Columns:  groupColumns,
		Search:   groupSearch,
		Filters: []Filter{
			{Param: "membersCount", Column: "membersCount", Kind: filterCount},
		},
		MultiIn: &MultiIn{
			Param:   "groupTypes",
			Column:  "groupTypes",
			Default: []string{"Security", "Mail-enabled Security"},
		},
	},
	{
		Name:     "mail-enabled-security",
		Resource: "groups",
		Base:     "groups",
		Columns:  groupColumns,
		Search:   groupSearch,
		Filters: []Filter{
			{Param: "groupTypes", Column: "groupTypes", Kind: filterExact},
			{Param: "membersCount", Column: "membersCount", Kind: filterCount},
		},
		Enforce: map[string]string{"groupTypes": "Mail-enabled Security"},
	},
	{
		Name:     "empty",
		Resource: "groups",
		Base:     "groups",
		Columns: []string{
			"displayName", "createdDateTime", "groupTypes", "mail",
			"membersCount", "ownersCount",
		},
		Search: []string{"displayName", "mail"},
		Filters: []Filter{
			{Param: "groupTypes", Column: "groupTypes", Kind: filterLike},
		},
		Conditions: []string{"membersCount = 0"},
	},
	{
		Name:     "recently-created",
		Resource: "groups",
		Base:     "groups",
		Columns: []string{
			"displayName", "createdDateTime", "groupTypes", "mail", "id",
			"membersCount", "ownersCount", "securityEnabled", "mailEnabled",
		},
		Search: groupSearch,
		Filters: []Filter{
			{Param: "securityEnabled", Column: "securityEnabled", Kind: filterBool},
			{Param: "mailEnabled", Column: "mailEnabled", Kind: filterBool},
		},
		RecentDays: 30,
		BoolCols:   []string{"securityEnabled", "mailEnabled"},
	},
	{
		Name:     "members",
		Resource: "groups",
		Base:     "group_members gm JOIN groups g ON gm.groupId = g.id",
		Columns: []string{
			"gm.displayName AS memberName", "gm.userPrincipalName",
			"gm.department", "gm.jobTitle", "gm.signInStatus",
			"g.displayName AS groupName", "g.mail", "g.id", "g.groupTypes",
		},
		Search: []string{
			"gm.userPrincipalName", "gm.department", "gm.jobTitle",
			"g.mail", "g.displayName", "g.id",
		},
		MultiIn: &MultiIn{Param: "groupTypes", Column: "g.groupTypes"},
	},
	{
		Name:     "owners",
		Resource: "groups",
		Base:     "group_owners go JOIN groups g ON go.groupId = g.id",
		Columns: []string{
			"go.displayName AS ownerDisplayName", "go.userPrincipalName",
			"go.department", "go.jobTitle", "go.signInStatus",
			"g.displayName AS groupDisplayName", "g.mail", "g.groupTypes", "g.id",
		},
		Search: []string{
			"go.userPrincipalName", "go.department", "go.jobTitle",
			"g.displayName", "g.mail", "g.id",
		},
		Filters: []Filter{
			{Param: "groupTypes", Column: "g.groupTypes", Kind: filterExact},
			{Param: "userPrincipalName", Column: "go.userPrincipalName", Kind: filterExact},
			{Param: "displayName", Column: "g.displayName", Kind: filterExact},
		},
	},
	{
		Name:     "disabled-members",
		Resource: "groups",
		Base:     "group_members gm LEFT JOIN groups g ON gm.groupId = g.id",
		Columns: []string{
			"gm.displayName AS memberDisplayName", "gm.userPrincipalName",
			"gm.department", "gm.jobTitle", "gm.signInStatus",
			"g.displayName AS groupDisplayName", "g.mail", "g.membersCount",
		},
		Search: []string{
			"gm.userPrincipalName", "gm.department", "gm.jobTitle",
			"gm.displayName", "g.displayName", "g.mail",
		},
		Conditions: []string{"gm.signInStatus = 'Disabled'"},
	},

	teamReport("all", func(d *Definition) {
		d.IDColumn = "id"
	}),
	teamReport("public", func(d *Definition) {
		d.Enforce = map[string]string{"visibility": "Public"}
	}),
	teamReport("private", func(d *Definition) {
		d.Enforce = map[string]string{"visibility": "Private"}
	}),
	teamReport("teams-without-description", func(d *Definition) {
		d.Conditions = []string{"(description IS NULL OR TRIM(description) = '')"}
	}),
	teamReport("archived", func(d *Definition) {
		d.Enforce = map[string]string{"isArchived": "true"}
	}),
	teamReport("teams-private-channels", func(d *Definition) {
		d.Columns = []string{
			"id", "displayName", "description", "visibility", "membersCount",
			"ownersCount", "privateChannelsCount", "createdDateTime", "isArchived",
		}
		d.Conditions = []string{"privateChannelsCount > 0"}
	}),
	teamReport("teams-shared-channels", func(d *Definition) {
		d.Columns = []string{
			"id", "displayName", "description", "visibility", "membersCount",
			"ownersCount", "sharedChannelsCount", "createdDateTime", "isArchived",
		}
		d.Conditions = []string{"sharedChannelsCount > 0"}
	}),
	teamReport("recently-created-teams", func(d *Definition) {
		d.RecentDays = 90
	}),
	teamReport("hidden-memberships", func(d *Definition) {
		d.Enforce = map[string]string{"visibility": "HiddenMembership"}
	}),
	{
		Name:     "teams-owners",
		Resource: "teams",
		Base:     "team_owners own LEFT JOIN teams t ON own.teamId = t.id",
		Columns: []string{
			"own.userId", "own.userPrincipalName", "own.department",
			"own.jobTitle", "own.signInStatus",
			"own.displayName AS ownerDisplayName",
			"t.id", "t.displayName AS teamDisplayName", "t.description",
			"t.createdDateTime", "t.visibility", "t.membersCount",
			"t.ownersCount", "t.privateChannelsCount", "t.standardChannelsCount",
			"t.sharedChannelsCount", "t.isArchived",
		},
		Search:   []string{"t.displayName"},
		IDColumn: "t.id",
		Filters: []Filter{
			{Param: "userPrincipalName", Column: "own.userPrincipalName", Kind: filterExact},
			{Param: "displayName", Column: "t.displayName", Kind: filterExact},
			{Param: "department", Column: "own.department", Kind: filterExact},
			{Param: "visibility", Column: "t.visibility", Kind: filterFold},
			{Param: "isArchived", Column: "t.isArchived", Kind: filterBool},
		},
		BoolCols: []string{"isArchived"},
	},
	{
		Name:     "teams-members",
		Resource: "teams",
		Base:     "team_members tm LEFT JOIN teams t ON tm.teamId = t.id",
		Columns: []string{
			"tm.userId", "tm.userPrincipalName", "tm.department",
			"tm.jobTitle", "tm.signInStatus",
			"tm.displayName AS memberDisplayName",
			"t.id", "t.displayName AS teamDisplayName", "t.description",
			"t.createdDateTime", "t.visibility", "t.membersCount",
			"t.ownersCount", "t.privateChannelsCount", "t.standardChannelsCount",
			"t.sharedChannelsCount", "t.isArchived",
		},
		Search:   []string{"t.displayName"},
		IDColumn: "t.id",
		Filters: []Filter{
			{Param: "userPrincipalName", Column: "tm.userPrincipalName", Kind: filterExact},
			{Param: "displayName", Column: "t.displayName", Kind: filterExact},
			{Param: "visibility", Column: "t.visibility", Kind: filterFold},
			{Param: "isArchived", Column: "t.isArchived", Kind: filterBool},
		},
		BoolCols: []string{"isArchived"},
	},
}

// Lookup finds a report definition by resource and name.
func Lookup(resource, name string) (*Definition, error) {
	for i := range definitions {
		if definitions[i].Resource == resource && definitions[i].Name == name {
			return &definitions[i], nil
		}
	}
	return nil, fmt.Errorf("unknown report %s/%s", resource, name)
}

// Names lists the report names registered for a resource.
func Names(resource string) []string {
	var names []string
	for i := range definitions {
		if definitions[i].Resource == resource {
			names = append(names, definitions[i].Name)
		}
	}
	return names
}
