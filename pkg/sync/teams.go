package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	stdsync "sync"

	"github.com/gohugoio/hashstructure"
	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/graph"
	"codeberg.org/graphmirror/graphmirror/pkg/store"
)

// Teams ride the groups delta feed; the extra description field lets new
// teams pick it up on the first page when present.
const teamDeltaSelect = "id,displayName,description,createdDateTime,visibility," +
	"groupTypes,mailEnabled,securityEnabled,resourceProvisioningOptions"

// SyncTeams walks the groups delta feed for Team-provisioned groups, then
// refreshes details for every mirrored team so counts and flags on older
// teams stay current.
func (s *Syncer) SyncTeams(ctx context.Context) (Result, error) {
	var result Result
	syncedAt := nowStamp()

	deltaURL, err := s.store.GetDeltaLink(ctx, ResourceTeams)
	if err != nil {
		return result, s.finish(ctx, ResourceTeams, syncedAt, result, "", err)
	}
	if deltaURL == "" {
		deltaURL = s.client.BaseURL() + "/groups/delta?$select=" + teamDeltaSelect
	}

	deltaLink, err := s.client.DeltaWalk(ctx, deltaURL, func(items []json.RawMessage) error {
		for _, raw := range items {
			var g graph.GroupDelta
			if err := json.Unmarshal(raw, &g); err != nil {
				return fmt.Errorf("failed to decode team delta entry: %w", err)
			}
			if g.ID == "" {
				continue
			}

			if g.Removed != nil {
				// Tombstones don't carry provisioning options, so only
				// groups already mirrored as teams are deleted.
				exists, err := s.store.TeamExists(ctx, g.ID)
				if err != nil {
					return err
				}
				if !exists {
					continue
				}
				if err := s.store.DeleteTeam(ctx, g.ID); err != nil {
					return err
				}
				result.Deleted++
				continue
			}

			if !g.IsTeam() {
				continue
			}

			team := &store.Team{
				ID:              g.ID,
				DisplayName:     g.DisplayName,
				Description:     g.Description,
				Visibility:      g.Visibility,
				CreatedDateTime: g.CreatedDateTime,
			}
			prev, err := s.store.GetTeam(ctx, g.ID)
			if err != nil {
				return err
			}
			if prev != nil {
				mergeTeam(team, prev)
				if normalizedTeamHash(team) == normalizedTeamHash(prev) {
					continue
				}
			}

			created, err := s.store.UpsertTeam(ctx, team)
			if err != nil {
				return err
			}
			if created {
				result.Added++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return result, s.finish(ctx, ResourceTeams, syncedAt, result, "", err)
	}

	if err := s.refreshAllTeams(ctx); err != nil {
		return result, s.finish(ctx, ResourceTeams, syncedAt, result, "", err)
	}

	return result, s.finish(ctx, ResourceTeams, syncedAt, result, deltaLink, nil)
}

// mergeTeam fills fields the delta entry left empty from the stored row,
// mirroring the description-preserving upsert so the diff sees the row the
// store would keep.
func mergeTeam(next, prev *store.Team) {
	next.DisplayName = coalesce(next.DisplayName, prev.DisplayName)
	next.Description = coalesce(next.Description, prev.Description)
	next.Visibility = coalesce(next.Visibility, prev.Visibility)
	next.CreatedDateTime = coalesce(next.CreatedDateTime, prev.CreatedDateTime)
}

// normalizedTeamHash hashes the delta-owned fields with strings trimmed and
// lowered. The archive flag and all counts belong to the refresh pass and
// are excluded.
func normalizedTeamHash(t *store.Team) uint64 {
	n := *t
	n.IsArchived = false
	n.OwnersCount = 0
	n.MembersCount = 0
	n.PrivateChannelsCount = 0
	n.StandardChannelsCount = 0
	n.SharedChannelsCount = 0
	for _, f := range []*string{
		&n.ID, &n.DisplayName, &n.Description, &n.Visibility, &n.CreatedDateTime,
	} {
		*f = strings.ToLower(strings.TrimSpace(*f))
	}

	hash, err := hashstructure.Hash(n, nil)
	if err != nil {
		return 0
	}
	return hash
}

func (s *Syncer) refreshAllTeams(ctx context.Context) error {
	ids, err := s.store.TeamIDs(ctx)
	if err != nil {
		return err
	}

	var mu stdsync.Mutex
	var firstErr error
	worker := newSyncWorker(ctx, s.workers)

	for _, id := range ids {
		teamID := id
		worker.submit(func() {
			if err := s.refreshTeam(ctx, teamID); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}
	worker.wait()

	return firstErr
}

// refreshTeam re-fetches the always-current team state: description,
// archive flag, channel counts and the full owner/member roster. Remote
// failures fall back to stored values; store write failures propagate.
func (s *Syncer) refreshTeam(ctx context.Context, teamID string) error {
	prev, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}

	description := prev.Description
	var g struct {
		Description *string `json:"description"`
	}
	if err := s.client.GetJSON(ctx, fmt.Sprintf("/groups/%s?$select=description", teamID), &g, nil); err != nil {
		s.logger.Warn("team description fetch failed", zap.String("team", teamID), zap.Error(err))
	} else if g.Description != nil {
		description = *g.Description
	}

	isArchived := prev.IsArchived
	var t graph.Team
	if err := s.client.GetJSON(ctx, fmt.Sprintf("/teams/%s?$select=isArchived", teamID), &t, nil); err != nil {
		s.logger.Warn("team archive flag fetch failed", zap.String("team", teamID), zap.Error(err))
	} else {
		isArchived = t.IsArchived
	}

	owners, members := s.fetchTeamRoster(ctx, teamID)

	standardCount := s.countChannels(ctx, teamID, "standard")
	privateCount := s.countChannels(ctx, teamID, "private")
	sharedCount := s.countChannels(ctx, teamID, "shared")

	if err := s.store.UpdateTeamDetails(ctx, teamID, &store.TeamDetails{
		Description:           description,
		IsArchived:            isArchived,
		OwnersCount:           len(owners),
		MembersCount:          len(members),
		PrivateChannelsCount:  privateCount,
		StandardChannelsCount: standardCount,
		SharedChannelsCount:   sharedCount,
	}); err != nil {
		return err
	}

	if err := s.store.ReplaceTeamOwners(ctx, teamID, s.enrichTeamRoster(ctx, teamID, owners, "")); err != nil {
		return err
	}
	return s.store.ReplaceTeamMembers(ctx, teamID, s.enrichTeamRoster(ctx, teamID, members, "member"))
}

type rosterEntry struct {
	userID      string
	displayName string
	email       string
}

// fetchTeamRoster prefers the Teams members API, which carries roles and
// guests, and falls back to the group owner/member listings when it fails.
func (s *Syncer) fetchTeamRoster(ctx context.Context, teamID string) (owners, members []rosterEntry) {
	items, err := s.client.ListAll(ctx, fmt.Sprintf("/teams/%s/members", teamID), nil)
	if err == nil {
		for _, raw := range items {
			var m graph.ConversationMember
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			entry := rosterEntry{userID: m.UserID, displayName: m.DisplayName, email: m.Email}
			if entry.userID == "" {
				entry.userID = m.ID
			}
			if m.IsOwner() {
				owners = append(owners, entry)
			} else {
				members = append(members, entry)
			}
		}
		return owners, members
	}

	s.logger.Warn("teams members api failed, falling back to group roster",
		zap.String("team", teamID),
		zap.Error(err))

	for _, relation := range []string{"owners", "members"} {
		items, err := s.client.ListAll(ctx,
			fmt.Sprintf("/groups/%s/%s?$select=id,displayName,userPrincipalName", teamID, relation), nil)
		if err != nil {
			s.logger.Warn("group roster fallback failed",
				zap.String("team", teamID),
				zap.String("relation", relation),
				zap.Error(err))
			continue
		}
		for _, raw := range items {
			var m graph.DirectoryMember
			if err := json.Unmarshal(raw, &m); err != nil || m.ID == "" {
				continue
			}
			entry := rosterEntry{userID: m.ID, displayName: m.DisplayName, email: m.UserPrincipalName}
			if relation == "owners" {
				owners = append(owners, entry)
			} else {
				members = append(members, entry)
			}
		}
	}
	return owners, members
}

// enrichTeamRoster fills in department, job title and sign-in status from
// the local users mirror.
func (s *Syncer) enrichTeamRoster(ctx context.Context, teamID string, entries []rosterEntry, role string) []store.TeamAssociate {
	associates := make([]store.TeamAssociate, 0, len(entries))
	for _, e := range entries {
		a := store.TeamAssociate{
			TeamID:            teamID,
			UserID:            e.userID,
			DisplayName:       e.displayName,
			UserPrincipalName: e.email,
			Role:              role,
		}

		if e.userID != "" {
			u, err := s.store.GetUser(ctx, e.userID)
			if err != nil {
				s.logger.Warn("local user lookup failed",
					zap.String("user", e.userID),
					zap.Error(err))
			} else if u != nil {
				a.UserPrincipalName = coalesce(u.UserPrincipalName, e.email)
				a.Department = u.Department
				a.JobTitle = u.JobTitle
				a.SignInStatus = u.SignInStatus
			}
		}

		associates = append(associates, a)
	}
	return associates
}

// countChannels counts a team's channels of one membership type, following
// pagination. Failures return the partial count.
func (s *Syncer) countChannels(ctx context.Context, teamID, membershipType string) int {
	u := fmt.Sprintf("/teams/%s/channels?$filter=%s", teamID,
		url.QueryEscape(fmt.Sprintf("membershipType eq '%s'", membershipType)))

	total := 0
	next := u
	for next != "" {
		var p struct {
			Value    []graph.Channel `json:"value"`
			NextLink string          `json:"@odata.nextLink"`
		}
		if err := s.client.GetJSON(ctx, next, &p, nil); err != nil {
			s.logger.Warn("channel count failed",
				zap.String("team", teamID),
				zap.String("membershipType", membershipType),
				zap.Error(err))
			return total
		}
		total += len(p.Value)
		next = p.NextLink
	}
	return total
}
