package store

import (
	"context"
	"fmt"
	"strings"
)

// dialect holds the few type spellings that differ across the supported
// engines. Everything else in the schema is portable.
type dialect struct {
	text   string // unbounded text
	keyCol string // text usable as a primary key
	autoPK string // auto-incrementing integer primary key
}

func (s *Store) dialect() dialect {
	switch s.driver {
	case "postgres":
		return dialect{text: "TEXT", keyCol: "TEXT", autoPK: "SERIAL PRIMARY KEY"}
	case "mysql":
		return dialect{text: "TEXT", keyCol: "VARCHAR(255)", autoPK: "INT AUTO_INCREMENT PRIMARY KEY"}
	case "sqlserver":
		return dialect{text: "NVARCHAR(MAX)", keyCol: "NVARCHAR(450)", autoPK: "INT IDENTITY(1,1) PRIMARY KEY"}
	default:
		return dialect{text: "TEXT", keyCol: "TEXT", autoPK: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	}
}

// Migrate creates the mirror tables if they don't exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	d := s.dialect()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %[1]s PRIMARY KEY,
			displayName %[2]s,
			userPrincipalName %[2]s,
			email %[2]s,
			licenseStatus %[2]s,
			department %[2]s,
			jobTitle %[2]s,
			firstName %[2]s,
			lastName %[2]s,
			mailNickName %[2]s,
			userAddedTime %[2]s,
			alternateEmail %[2]s,
			officePhone %[2]s,
			mobilePhone %[2]s,
			faxNumber %[2]s,
			city %[2]s,
			country %[2]s,
			postalCode %[2]s,
			state %[2]s,
			streetAddress %[2]s,
			companyName %[2]s,
			usageLocation %[2]s,
			office %[2]s,
			signInStatus %[2]s,
			mfaStatus %[2]s,
			preferredLanguage %[2]s,
			directReportsCount INTEGER
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS groups (
			id %[1]s PRIMARY KEY,
			displayName %[2]s,
			createdDateTime %[2]s,
			groupTypes %[2]s,
			mail %[2]s,
			visibility %[2]s,
			securityEnabled INTEGER,
			mailEnabled INTEGER,
			membersCount INTEGER DEFAULT 0,
			ownersCount INTEGER DEFAULT 0
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS group_members (
			id %[1]s PRIMARY KEY,
			groupId %[1]s,
			userId %[1]s,
			displayName %[2]s,
			userPrincipalName %[2]s,
			department %[2]s,
			jobTitle %[2]s,
			signInStatus %[2]s
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS group_owners (
			id %[1]s PRIMARY KEY,
			groupId %[1]s,
			userId %[1]s,
			displayName %[2]s,
			userPrincipalName %[2]s,
			department %[2]s,
			jobTitle %[2]s,
			signInStatus %[2]s
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS teams (
			id %[1]s PRIMARY KEY,
			displayName %[2]s,
			description %[2]s,
			visibility %[2]s,
			isArchived INTEGER,
			createdDateTime %[2]s,
			ownersCount INTEGER DEFAULT 0,
			membersCount INTEGER DEFAULT 0,
			privateChannelsCount INTEGER DEFAULT 0,
			standardChannelsCount INTEGER DEFAULT 0,
			sharedChannelsCount INTEGER DEFAULT 0
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS team_members (
			id %[1]s PRIMARY KEY,
			teamId %[1]s,
			userId %[1]s,
			displayName %[2]s,
			userPrincipalName %[2]s,
			department %[2]s,
			jobTitle %[2]s,
			signInStatus %[2]s,
			role %[2]s
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS team_owners (
			id %[1]s PRIMARY KEY,
			teamId %[1]s,
			userId %[1]s,
			displayName %[2]s,
			userPrincipalName %[2]s,
			department %[2]s,
			jobTitle %[2]s,
			signInStatus %[2]s
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS delta_tokens (
			resource %[1]s PRIMARY KEY,
			delta_link %[2]s,
			last_synced_at %[2]s
		)`, d.keyCol, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_logs (
			id %[1]s,
			resource %[2]s,
			synced_at %[2]s,
			added INTEGER,
			updated INTEGER,
			deleted INTEGER,
			status %[2]s,
			error_message %[2]s
		)`, d.autoPK, d.text),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			name := tableName(stmt)
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}

	s.logger.Debug("schema migration complete")
	return nil
}

func tableName(stmt string) string {
	const marker = "IF NOT EXISTS "
	i := strings.Index(stmt, marker)
	if i < 0 {
		return "?"
	}
	rest := stmt[i+len(marker):]
	if j := strings.IndexAny(rest, " (\n\t"); j > 0 {
		return rest[:j]
	}
	return rest
}
