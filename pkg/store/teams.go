package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Team struct {
	ID                    string
	DisplayName           string
	Description           string
	Visibility            string
	IsArchived            bool
	CreatedDateTime       string
	OwnersCount           int
	MembersCount          int
	PrivateChannelsCount  int
	StandardChannelsCount int
	SharedChannelsCount   int
}

// TeamAssociate is a row in team_members or team_owners.
type TeamAssociate struct {
	TeamID            string
	UserID            string
	DisplayName       string
	UserPrincipalName string
	Department        string
	JobTitle          string
	SignInStatus      string
	Role              string // team_members only
}

func (a *TeamAssociate) compositeID() string {
	key := a.UserID
	if key == "" {
		key = a.UserPrincipalName
	}
	if key == "" {
		key = a.DisplayName
	}
	if key == "" {
		key = "unknown"
	}
	return a.TeamID + "_" + key
}

func (s *Store) TeamExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM teams WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check team %s: %w", id, err)
	}
	return true, nil
}

// UpsertTeam writes team metadata from the delta feed. An empty incoming
// description never clears a stored one, and counts plus isArchived are left
// for the detail refresh to maintain.
func (s *Store) UpsertTeam(ctx context.Context, t *Team) (created bool, err error) {
	res, err := s.exec(ctx, `UPDATE teams SET
		displayName = ?,
		description = CASE WHEN ? != '' THEN ? ELSE description END,
		visibility = ?,
		createdDateTime = ?
		WHERE id = ?`,
		t.DisplayName, t.Description, t.Description, t.Visibility, t.CreatedDateTime,
		t.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update team %s: %w", t.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	_, err = s.exec(ctx, `INSERT INTO teams
		(id, displayName, description, visibility, isArchived, createdDateTime,
		 ownersCount, membersCount, privateChannelsCount, standardChannelsCount, sharedChannelsCount)
		VALUES (?, ?, ?, ?, 0, ?, 0, 0, 0, 0, 0)`,
		t.ID, t.DisplayName, t.Description, t.Visibility, t.CreatedDateTime,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert team %s: %w", t.ID, err)
	}
	return true, nil
}

// TeamDetails carries the always-refreshed team state.
type TeamDetails struct {
	Description           string
	IsArchived            bool
	OwnersCount           int
	MembersCount          int
	PrivateChannelsCount  int
	StandardChannelsCount int
	SharedChannelsCount   int
}

func (s *Store) UpdateTeamDetails(ctx context.Context, id string, d *TeamDetails) error {
	_, err := s.exec(ctx, `UPDATE teams SET
		description = ?,
		isArchived = ?,
		ownersCount = ?,
		membersCount = ?,
		privateChannelsCount = ?,
		standardChannelsCount = ?,
		sharedChannelsCount = ?
		WHERE id = ?`,
		d.Description, boolToInt(d.IsArchived),
		d.OwnersCount, d.MembersCount,
		d.PrivateChannelsCount, d.StandardChannelsCount, d.SharedChannelsCount,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update details for team %s: %w", id, err)
	}
	return nil
}

// DeleteTeam removes the team and its membership rows.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM teams WHERE id = ?`,
		`DELETE FROM team_members WHERE teamId = ?`,
		`DELETE FROM team_owners WHERE teamId = ?`,
	} {
		if _, err := s.exec(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete team %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (*Team, error) {
	var t Team
	var archived int
	err := s.queryRow(ctx, `SELECT id, displayName, description, visibility, isArchived, createdDateTime,
		ownersCount, membersCount, privateChannelsCount, standardChannelsCount, sharedChannelsCount
		FROM teams WHERE id = ?`, id).
		Scan(&t.ID, &t.DisplayName, &t.Description, &t.Visibility, &archived, &t.CreatedDateTime,
			&t.OwnersCount, &t.MembersCount, &t.PrivateChannelsCount, &t.StandardChannelsCount, &t.SharedChannelsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load team %s: %w", id, err)
	}
	t.IsArchived = archived != 0
	return &t, nil
}

func (s *Store) TeamIDs(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT id FROM teams`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplaceTeamOwners swaps the full owner set for the team. Team rosters are
// refreshed wholesale, unlike group rosters which are upserted in place.
func (s *Store) ReplaceTeamOwners(ctx context.Context, teamID string, owners []TeamAssociate) error {
	if _, err := s.exec(ctx, `DELETE FROM team_owners WHERE teamId = ?`, teamID); err != nil {
		return fmt.Errorf("failed to clear owners for team %s: %w", teamID, err)
	}
	for i := range owners {
		a := &owners[i]
		_, err := s.exec(ctx, `INSERT INTO team_owners
			(id, teamId, userId, displayName, userPrincipalName, department, jobTitle, signInStatus)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.compositeID(), teamID, a.UserID,
			a.DisplayName, a.UserPrincipalName, a.Department, a.JobTitle, a.SignInStatus,
		)
		if err != nil {
			return fmt.Errorf("failed to insert owner for team %s: %w", teamID, err)
		}
	}
	return nil
}

// ReplaceTeamMembers swaps the full member set for the team.
func (s *Store) ReplaceTeamMembers(ctx context.Context, teamID string, members []TeamAssociate) error {
	if _, err := s.exec(ctx, `DELETE FROM team_members WHERE teamId = ?`, teamID); err != nil {
		return fmt.Errorf("failed to clear members for team %s: %w", teamID, err)
	}
	for i := range members {
		a := &members[i]
		role := a.Role
		if role == "" {
			role = "member"
		}
		_, err := s.exec(ctx, `INSERT INTO team_members
			(id, teamId, userId, displayName, userPrincipalName, department, jobTitle, signInStatus, role)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.compositeID(), teamID, a.UserID,
			a.DisplayName, a.UserPrincipalName, a.Department, a.JobTitle, a.SignInStatus, role,
		)
		if err != nil {
			return fmt.Errorf("failed to insert member for team %s: %w", teamID, err)
		}
	}
	return nil
}
