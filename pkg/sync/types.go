package sync

// Mirrored resource names. They key delta_tokens and sync_logs rows.
const (
	ResourceUsers  = "users"
	ResourceGroups = "groups"
	ResourceTeams  = "teams"
)

// Result tallies one sync run.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Group type labels inferred when the delta feed sends no explicit groupTypes.
const (
	groupTypeDistribution = "Distribution"
	groupTypeSecurity     = "Security"
	groupTypeMailSecurity = "Mail-enabled Security"
)
