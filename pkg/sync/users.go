package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gohugoio/hashstructure"
	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/graph"
	"codeberg.org/graphmirror/graphmirror/pkg/store"
)

const userEnrichSelect = "id,accountEnabled,department,assignedLicenses,createdDateTime," +
	"mailNickname,city,country,state,postalCode,streetAddress,preferredLanguage," +
	"mobilePhone,businessPhones,givenName,surname"

// SyncUsers walks the users delta feed, enriches changed users through
// $batch lookups and reconciles the mirror.
func (s *Syncer) SyncUsers(ctx context.Context) (Result, error) {
	var result Result
	syncedAt := nowStamp()

	deltaURL, err := s.store.GetDeltaLink(ctx, ResourceUsers)
	if err != nil {
		return result, s.finish(ctx, ResourceUsers, syncedAt, result, "", err)
	}
	if deltaURL == "" {
		deltaURL = s.client.BaseURL() + "/users/delta"
	}

	var tombstones []string
	var order []string
	changed := make(map[string]*graph.UserDelta)

	deltaLink, err := s.client.DeltaWalk(ctx, deltaURL, func(items []json.RawMessage) error {
		for _, raw := range items {
			var d graph.UserDelta
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("failed to decode user delta entry: %w", err)
			}
			if d.ID == "" {
				continue
			}
			if d.Removed != nil {
				tombstones = append(tombstones, d.ID)
				continue
			}
			if _, seen := changed[d.ID]; !seen {
				order = append(order, d.ID)
			}
			changed[d.ID] = &d
		}
		return nil
	})
	if err != nil {
		return result, s.finish(ctx, ResourceUsers, syncedAt, result, "", err)
	}

	stored, err := s.store.AllUsers(ctx)
	if err != nil {
		return result, s.finish(ctx, ResourceUsers, syncedAt, result, "", err)
	}

	profiles := s.fetchProfiles(ctx, order)

	for _, id := range tombstones {
		if err := s.store.DeleteUser(ctx, id); err != nil {
			return result, s.finish(ctx, ResourceUsers, syncedAt, result, "", err)
		}
		result.Deleted++
	}

	for _, id := range order {
		prev := stored[id]
		merged := mergeUser(id, changed[id], profiles[id], prev)

		if prev != nil && normalizedUserHash(merged) == normalizedUserHash(prev) {
			continue
		}

		created, err := s.store.UpsertUser(ctx, merged)
		if err != nil {
			return result, s.finish(ctx, ResourceUsers, syncedAt, result, "", err)
		}
		if created {
			result.Added++
		} else {
			result.Updated++
		}
	}

	return result, s.finish(ctx, ResourceUsers, syncedAt, result, deltaLink, nil)
}

// fetchProfiles resolves enrichment profiles for the given user ids through
// $batch calls issued one batch at a time. Lookup failures degrade to
// warnings; the affected users simply keep their stored values.
func (s *Syncer) fetchProfiles(ctx context.Context, ids []string) map[string]*graph.UserProfile {
	profiles := make(map[string]*graph.UserProfile, len(ids))

	for start := 0; start < len(ids); start += s.lookupBatch {
		end := start + s.lookupBatch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		requests := make([]graph.BatchRequest, 0, len(chunk))
		for i, id := range chunk {
			requests = append(requests, graph.BatchRequest{
				ID:     strconv.Itoa(i),
				Method: "GET",
				URL:    fmt.Sprintf("/users/%s?$select=%s", id, userEnrichSelect),
			})
		}

		responses, err := s.client.Batch(ctx, requests)
		if err != nil {
			s.logger.Warn("user enrichment batch failed",
				zap.Int("size", len(chunk)),
				zap.Error(err))
			continue
		}

		for _, resp := range responses {
			if resp.Status != 200 || len(resp.Body) == 0 {
				continue
			}
			var profile graph.UserProfile
			if err := json.Unmarshal(resp.Body, &profile); err != nil || profile.ID == "" {
				continue
			}
			profiles[profile.ID] = &profile
		}
	}
	return profiles
}

// mergeUser builds the row to store from the delta payload, the enrichment
// profile and the previously stored row. A field absent from the incoming
// data never overwrites a stored value.
func mergeUser(id string, delta *graph.UserDelta, profile *graph.UserProfile, prev *store.User) *store.User {
	u := &store.User{ID: id}
	if prev != nil {
		copied := *prev
		u = &copied
		u.ID = id
	}

	if delta != nil {
		u.DisplayName = coalesce(deref(delta.DisplayName), u.DisplayName)
		u.UserPrincipalName = coalesce(deref(delta.UserPrincipalName), u.UserPrincipalName)
		u.Email = coalesce(deref(delta.Mail), u.Email)
		u.JobTitle = coalesce(deref(delta.JobTitle), u.JobTitle)
	}

	if profile != nil {
		u.Department = coalesce(profile.Department, u.Department)
		u.MailNickName = coalesce(profile.MailNickname, u.MailNickName)
		u.UserAddedTime = coalesce(profile.CreatedDateTime, u.UserAddedTime)
		u.MobilePhone = coalesce(profile.MobilePhone, u.MobilePhone)
		u.City = coalesce(profile.City, u.City)
		u.Country = coalesce(profile.Country, u.Country)
		u.PostalCode = coalesce(profile.PostalCode, u.PostalCode)
		u.State = coalesce(profile.State, u.State)
		u.StreetAddress = coalesce(profile.StreetAddress, u.StreetAddress)
		u.PreferredLanguage = coalesce(profile.PreferredLanguage, u.PreferredLanguage)
		u.FirstName = coalesce(profile.GivenName, u.FirstName)
		u.LastName = coalesce(profile.Surname, u.LastName)
		if len(profile.BusinessPhones) > 0 {
			u.OfficePhone = coalesce(profile.BusinessPhones[0], u.OfficePhone)
		}

		// Status fields are authoritative when the profile is present.
		if len(profile.AssignedLicenses) > 0 {
			u.LicenseStatus = "Licensed"
		} else {
			u.LicenseStatus = "Unlicensed"
		}
		if profile.AccountEnabled != nil && !*profile.AccountEnabled {
			u.SignInStatus = "Disabled"
		} else {
			u.SignInStatus = "Enabled"
		}
	}

	// New user with no reachable profile still gets sane status defaults.
	if u.LicenseStatus == "" {
		u.LicenseStatus = "Unlicensed"
	}
	if u.SignInStatus == "" {
		u.SignInStatus = "Enabled"
	}

	return u
}

// normalizedUserHash hashes the user with all strings trimmed and lowered,
// so cosmetic differences don't count as changes.
func normalizedUserHash(u *store.User) uint64 {
	n := *u
	for _, f := range []*string{
		&n.ID, &n.DisplayName, &n.UserPrincipalName, &n.Email, &n.LicenseStatus,
		&n.Department, &n.JobTitle, &n.FirstName, &n.LastName, &n.MailNickName,
		&n.UserAddedTime, &n.AlternateEmail, &n.OfficePhone, &n.MobilePhone,
		&n.FaxNumber, &n.City, &n.Country, &n.PostalCode, &n.State,
		&n.StreetAddress, &n.CompanyName, &n.UsageLocation, &n.Office,
		&n.SignInStatus, &n.MFAStatus, &n.PreferredLanguage,
	} {
		*f = strings.ToLower(strings.TrimSpace(*f))
	}

	hash, err := hashstructure.Hash(n, nil)
	if err != nil {
		return 0
	}
	return hash
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func coalesce(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
