package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Group struct {
	ID              string
	DisplayName     string
	CreatedDateTime string
	GroupTypes      string
	Mail            string
	Visibility      string
	SecurityEnabled bool
	MailEnabled     bool
	MembersCount    int
	OwnersCount     int
}

// GroupAssociate is a row in group_members or group_owners. The row id is
// the composite <groupId>_<userId> so re-syncs collapse into updates.
type GroupAssociate struct {
	GroupID           string
	UserID            string
	DisplayName       string
	UserPrincipalName string
	Department        string
	JobTitle          string
	SignInStatus      string
}

func (a *GroupAssociate) compositeID() string {
	return a.GroupID + "_" + a.UserID
}

func (s *Store) GroupExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM groups WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check group %s: %w", id, err)
	}
	return true, nil
}

// UpsertGroup writes group metadata. Counts are never touched here; they are
// maintained separately by the membership refresh.
func (s *Store) UpsertGroup(ctx context.Context, g *Group) (created bool, err error) {
	res, err := s.exec(ctx, `UPDATE groups SET
		displayName = ?, createdDateTime = ?, groupTypes = ?, mail = ?, visibility = ?,
		securityEnabled = ?, mailEnabled = ?
		WHERE id = ?`,
		g.DisplayName, g.CreatedDateTime, g.GroupTypes, g.Mail, g.Visibility,
		boolToInt(g.SecurityEnabled), boolToInt(g.MailEnabled),
		g.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update group %s: %w", g.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	_, err = s.exec(ctx, `INSERT INTO groups
		(id, displayName, createdDateTime, groupTypes, mail, visibility, securityEnabled, mailEnabled, membersCount, ownersCount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		g.ID, g.DisplayName, g.CreatedDateTime, g.GroupTypes, g.Mail, g.Visibility,
		boolToInt(g.SecurityEnabled), boolToInt(g.MailEnabled),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert group %s: %w", g.ID, err)
	}
	return true, nil
}

// DeleteGroup removes the group and its membership rows.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM groups WHERE id = ?`,
		`DELETE FROM group_members WHERE groupId = ?`,
		`DELETE FROM group_owners WHERE groupId = ?`,
	} {
		if _, err := s.exec(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete group %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) UpdateGroupCounts(ctx context.Context, id string, ownersCount, membersCount int) error {
	_, err := s.exec(ctx, `UPDATE groups SET ownersCount = ?, membersCount = ? WHERE id = ?`,
		ownersCount, membersCount, id)
	if err != nil {
		return fmt.Errorf("failed to update counts for group %s: %w", id, err)
	}
	return nil
}

// GroupIDs lists all mirrored group ids.
func (s *Store) GroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT id FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
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

func (s *Store) GetGroup(ctx context.Context, id string) (*Group, error) {
	var g Group
	var secEnabled, mailEnabled int
	err := s.queryRow(ctx, `SELECT id, displayName, createdDateTime, groupTypes, mail, visibility,
		securityEnabled, mailEnabled, membersCount, ownersCount FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.DisplayName, &g.CreatedDateTime, &g.GroupTypes, &g.Mail, &g.Visibility,
			&secEnabled, &mailEnabled, &g.MembersCount, &g.OwnersCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group %s: %w", id, err)
	}
	g.SecurityEnabled = secEnabled != 0
	g.MailEnabled = mailEnabled != 0
	return &g, nil
}

func (s *Store) UpsertGroupMember(ctx context.Context, a *GroupAssociate) error {
	return s.upsertGroupAssociate(ctx, "group_members", a)
}

func (s *Store) UpsertGroupOwner(ctx context.Context, a *GroupAssociate) error {
	return s.upsertGroupAssociate(ctx, "group_owners", a)
}

func (s *Store) upsertGroupAssociate(ctx context.Context, table string, a *GroupAssociate) error {
	res, err := s.exec(ctx, `UPDATE `+table+` SET
		displayName = ?, userPrincipalName = ?, department = ?, jobTitle = ?, signInStatus = ?
		WHERE id = ?`,
		a.DisplayName, a.UserPrincipalName, a.Department, a.JobTitle, a.SignInStatus,
		a.compositeID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update %s row: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, err = s.exec(ctx, `INSERT INTO `+table+`
		(id, groupId, userId, displayName, userPrincipalName, department, jobTitle, signInStatus)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.compositeID(), a.GroupID, a.UserID,
		a.DisplayName, a.UserPrincipalName, a.Department, a.JobTitle, a.SignInStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s row: %w", table, err)
	}
	return nil
}

func (s *Store) CountGroupMembers(ctx context.Context, groupID string) (int, error) {
	return s.QueryCount(ctx, `SELECT COUNT(*) FROM group_members WHERE groupId = ?`, groupID)
}
