package graph

import "encoding/json"

// Removed marks a tombstone entry in a delta feed.
type Removed struct {
	Reason string `json:"reason"`
}

// UserDelta is the partial user object carried by the users delta feed.
// Absent fields stay nil so callers can tell "not sent" from "empty".
type UserDelta struct {
	ID                string   `json:"id"`
	DisplayName       *string  `json:"displayName"`
	UserPrincipalName *string  `json:"userPrincipalName"`
	Mail              *string  `json:"mail"`
	JobTitle          *string  `json:"jobTitle"`
	Removed           *Removed `json:"@removed"`
}

// UserProfile is the enrichment payload fetched per user through $batch.
type UserProfile struct {
	ID                string            `json:"id"`
	AccountEnabled    *bool             `json:"accountEnabled"`
	Department        string            `json:"department"`
	AssignedLicenses  []AssignedLicense `json:"assignedLicenses"`
	CreatedDateTime   string            `json:"createdDateTime"`
	MailNickname      string            `json:"mailNickname"`
	City              string            `json:"city"`
	Country           string            `json:"country"`
	State             string            `json:"state"`
	PostalCode        string            `json:"postalCode"`
	StreetAddress     string            `json:"streetAddress"`
	PreferredLanguage string            `json:"preferredLanguage"`
	MobilePhone       string            `json:"mobilePhone"`
	BusinessPhones    []string          `json:"businessPhones"`
	GivenName         string            `json:"givenName"`
	Surname           string            `json:"surname"`
}

type AssignedLicense struct {
	SkuID string `json:"skuId"`
}

// GroupDelta is the partial group object carried by the groups delta feed.
// Teams are provisioned as groups, so the same feed drives both mirrors.
type GroupDelta struct {
	ID                          string   `json:"id"`
	DisplayName                 string   `json:"displayName"`
	Description                 string   `json:"description"`
	CreatedDateTime             string   `json:"createdDateTime"`
	GroupTypes                  []string `json:"groupTypes"`
	Mail                        string   `json:"mail"`
	Visibility                  string   `json:"visibility"`
	SecurityEnabled             bool     `json:"securityEnabled"`
	MailEnabled                 bool     `json:"mailEnabled"`
	ResourceProvisioningOptions []string `json:"resourceProvisioningOptions"`
	Removed                     *Removed `json:"@removed"`
}

// IsTeam reports whether the group is provisioned as a Microsoft Team.
func (g *GroupDelta) IsTeam() bool {
	for _, opt := range g.ResourceProvisioningOptions {
		if opt == "Team" {
			return true
		}
	}
	return false
}

// DirectoryMember is a user returned from group owner/member listings.
type DirectoryMember struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Department        string `json:"department"`
	JobTitle          string `json:"jobTitle"`
	AccountEnabled    *bool  `json:"accountEnabled"`
}

// ConversationMember is a membership entry from the Teams members API.
type ConversationMember struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
}

// IsOwner reports whether the member carries the owner role.
func (m *ConversationMember) IsOwner() bool {
	for _, r := range m.Roles {
		if r == "owner" {
			return true
		}
	}
	return false
}

type Channel struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	MembershipType string `json:"membershipType"`
}

type Team struct {
	ID         string `json:"id"`
	IsArchived bool   `json:"isArchived"`
}

type page struct {
	Value     []json.RawMessage `json:"value"`
	NextLink  string            `json:"@odata.nextLink"`
	DeltaLink string            `json:"@odata.deltaLink"`
}

// BatchRequest is a single entry in a $batch call.
type BatchRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

// BatchResponse is the per-request result of a $batch call.
type BatchResponse struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type batchEnvelope struct {
	Requests []BatchRequest `json:"requests"`
}

type batchResult struct {
	Responses []BatchResponse `json:"responses"`
}
