package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gohugoio/hashstructure"
	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/graph"
	"codeberg.org/graphmirror/graphmirror/pkg/store"
)

const groupDeltaSelect = "id,displayName,createdDateTime,groupTypes,mail,visibility," +
	"securityEnabled,mailEnabled,resourceProvisioningOptions"

const associateSelect = "id,displayName,userPrincipalName,department,jobTitle,accountEnabled"

// SyncGroups walks the groups delta feed and reconciles non-Team groups,
// then refreshes membership rosters and counts for every mirrored group.
// Pages are applied as they arrive, so a failure mid-walk keeps the rows
// already written and their counts in the sync log.
func (s *Syncer) SyncGroups(ctx context.Context) (Result, error) {
	var result Result
	syncedAt := nowStamp()

	deltaURL, err := s.store.GetDeltaLink(ctx, ResourceGroups)
	if err != nil {
		return result, s.finish(ctx, ResourceGroups, syncedAt, result, "", err)
	}
	if deltaURL == "" {
		deltaURL = s.client.BaseURL() + "/groups/delta?$select=" + groupDeltaSelect
	}

	deltaLink, err := s.client.DeltaWalk(ctx, deltaURL, func(items []json.RawMessage) error {
		for _, raw := range items {
			var g graph.GroupDelta
			if err := json.Unmarshal(raw, &g); err != nil {
				return fmt.Errorf("failed to decode group delta entry: %w", err)
			}
			if g.ID == "" {
				continue
			}

			// Teams are mirrored by the teams sync, not here.
			if g.IsTeam() {
				continue
			}

			if g.Removed != nil {
				if err := s.store.DeleteGroup(ctx, g.ID); err != nil {
					return err
				}
				result.Deleted++
				continue
			}

			group := buildGroup(&g)
			prev, err := s.store.GetGroup(ctx, g.ID)
			if err != nil {
				return err
			}
			if prev != nil {
				mergeGroup(group, prev)
				if normalizedGroupHash(group) == normalizedGroupHash(prev) {
					continue
				}
			}

			created, err := s.store.UpsertGroup(ctx, group)
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
		return result, s.finish(ctx, ResourceGroups, syncedAt, result, "", err)
	}

	if err := s.refreshGroupRosters(ctx); err != nil {
		return result, s.finish(ctx, ResourceGroups, syncedAt, result, "", err)
	}

	return result, s.finish(ctx, ResourceGroups, syncedAt, result, deltaLink, nil)
}

// buildGroup maps a delta entry to a stored group, inferring the type label
// from the mail/security flags when the feed sends no explicit groupTypes.
func buildGroup(g *graph.GroupDelta) *store.Group {
	groupTypes := ""
	visibility := g.Visibility

	if len(g.GroupTypes) > 0 {
		groupTypes = strings.Join(g.GroupTypes, ",")
	} else {
		switch {
		case g.MailEnabled && !g.SecurityEnabled:
			groupTypes = groupTypeDistribution
			visibility = groupTypeDistribution
		case !g.MailEnabled && g.SecurityEnabled:
			groupTypes = groupTypeSecurity
			visibility = groupTypeSecurity
		case g.MailEnabled && g.SecurityEnabled:
			groupTypes = groupTypeMailSecurity
			visibility = groupTypeSecurity
		}
	}

	return &store.Group{
		ID:              g.ID,
		DisplayName:     g.DisplayName,
		CreatedDateTime: g.CreatedDateTime,
		GroupTypes:      groupTypes,
		Mail:            g.Mail,
		Visibility:      visibility,
		SecurityEnabled: g.SecurityEnabled,
		MailEnabled:     g.MailEnabled,
	}
}

// mergeGroup fills fields the delta entry left empty from the stored row.
// Delta updates carry only changed properties, so absence is not removal.
func mergeGroup(next, prev *store.Group) {
	next.DisplayName = coalesce(next.DisplayName, prev.DisplayName)
	next.CreatedDateTime = coalesce(next.CreatedDateTime, prev.CreatedDateTime)
	next.GroupTypes = coalesce(next.GroupTypes, prev.GroupTypes)
	next.Mail = coalesce(next.Mail, prev.Mail)
	next.Visibility = coalesce(next.Visibility, prev.Visibility)
	next.OwnersCount = prev.OwnersCount
	next.MembersCount = prev.MembersCount
}

// normalizedGroupHash hashes the delta-owned fields with strings trimmed and
// lowered. Counts are maintained by the roster pass and excluded.
func normalizedGroupHash(g *store.Group) uint64 {
	n := *g
	n.OwnersCount = 0
	n.MembersCount = 0
	for _, f := range []*string{
		&n.ID, &n.DisplayName, &n.CreatedDateTime, &n.GroupTypes, &n.Mail, &n.Visibility,
	} {
		*f = strings.ToLower(strings.TrimSpace(*f))
	}

	hash, err := hashstructure.Hash(n, nil)
	if err != nil {
		return 0
	}
	return hash
}

// refreshGroupRosters re-fetches owners and members for every mirrored group
// in sequence and maintains the aggregate counts. Remote fetch failures are
// logged and skipped; store write failures fail the run.
func (s *Syncer) refreshGroupRosters(ctx context.Context) error {
	ids, err := s.store.GroupIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.refreshGroupRoster(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) refreshGroupRoster(ctx context.Context, groupID string) error {
	owners, ownersOK := s.fetchAssociates(ctx, groupID, "owners")
	members, membersOK := s.fetchAssociates(ctx, groupID, "members")
	if !ownersOK && !membersOK {
		// Nothing reachable for this group this run; keep stored roster.
		return nil
	}

	if err := s.store.UpdateGroupCounts(ctx, groupID, len(owners), len(members)); err != nil {
		return err
	}

	for i := range owners {
		if err := s.store.UpsertGroupOwner(ctx, &owners[i]); err != nil {
			return err
		}
	}
	for i := range members {
		if err := s.store.UpsertGroupMember(ctx, &members[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) fetchAssociates(ctx context.Context, groupID, relation string) ([]store.GroupAssociate, bool) {
	url := fmt.Sprintf("%s/groups/%s/%s?$select=%s&$top=999", s.client.BaseURL(), groupID, relation, associateSelect)

	items, err := s.client.ListAll(ctx, url, nil)
	if err != nil {
		s.logger.Warn("group roster fetch failed",
			zap.String("group", groupID),
			zap.String("relation", relation),
			zap.Error(err))
		return nil, false
	}

	associates := make([]store.GroupAssociate, 0, len(items))
	for _, raw := range items {
		var m graph.DirectoryMember
		if err := json.Unmarshal(raw, &m); err != nil || m.ID == "" {
			continue
		}
		associates = append(associates, store.GroupAssociate{
			GroupID:           groupID,
			UserID:            m.ID,
			DisplayName:       m.DisplayName,
			UserPrincipalName: m.UserPrincipalName,
			Department:        m.Department,
			JobTitle:          m.JobTitle,
			SignInStatus:      signInStatus(m.AccountEnabled),
		})
	}
	return associates, true
}

func signInStatus(accountEnabled *bool) string {
	if accountEnabled != nil && !*accountEnabled {
		return "Disabled"
	}
	return "Enabled"
}
