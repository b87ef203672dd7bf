package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// User is a mirrored directory user. Column names follow the Graph field
// names so report output matches what operators see in the portal.
type User struct {
	ID                 string
	DisplayName        string
	UserPrincipalName  string
	Email              string
	LicenseStatus      string
	Department         string
	JobTitle           string
	FirstName          string
	LastName           string
	MailNickName       string
	UserAddedTime      string
	AlternateEmail     string
	OfficePhone        string
	MobilePhone        string
	FaxNumber          string
	City               string
	Country            string
	PostalCode         string
	State              string
	StreetAddress      string
	CompanyName        string
	UsageLocation      string
	Office             string
	SignInStatus       string
	MFAStatus          string
	PreferredLanguage  string
	DirectReportsCount sql.NullInt64
}

const userColumns = `id, displayName, userPrincipalName, email, licenseStatus, department,
	jobTitle, firstName, lastName, mailNickName, userAddedTime,
	alternateEmail, officePhone, mobilePhone, faxNumber,
	city, country, postalCode, state, streetAddress,
	companyName, usageLocation, office, signInStatus, mfaStatus,
	preferredLanguage, directReportsCount`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.DisplayName, &u.UserPrincipalName, &u.Email, &u.LicenseStatus, &u.Department,
		&u.JobTitle, &u.FirstName, &u.LastName, &u.MailNickName, &u.UserAddedTime,
		&u.AlternateEmail, &u.OfficePhone, &u.MobilePhone, &u.FaxNumber,
		&u.City, &u.Country, &u.PostalCode, &u.State, &u.StreetAddress,
		&u.CompanyName, &u.UsageLocation, &u.Office, &u.SignInStatus, &u.MFAStatus,
		&u.PreferredLanguage, &u.DirectReportsCount,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns the stored user, or nil when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return u, nil
}

// AllUsers loads the full mirror keyed by id. The reconciler diffs incoming
// changes against this map.
func (s *Store) AllUsers(ctx context.Context) (map[string]*User, error) {
	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	users := make(map[string]*User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

// UpsertUser writes the user and reports whether a new row was created.
func (s *Store) UpsertUser(ctx context.Context, u *User) (created bool, err error) {
	res, err := s.exec(ctx, `UPDATE users SET
		displayName = ?, userPrincipalName = ?, email = ?, licenseStatus = ?, department = ?,
		jobTitle = ?, firstName = ?, lastName = ?, mailNickName = ?, userAddedTime = ?,
		alternateEmail = ?, officePhone = ?, mobilePhone = ?, faxNumber = ?,
		city = ?, country = ?, postalCode = ?, state = ?, streetAddress = ?,
		companyName = ?, usageLocation = ?, office = ?, signInStatus = ?, mfaStatus = ?,
		preferredLanguage = ?, directReportsCount = ?
		WHERE id = ?`,
		u.DisplayName, u.UserPrincipalName, u.Email, u.LicenseStatus, u.Department,
		u.JobTitle, u.FirstName, u.LastName, u.MailNickName, u.UserAddedTime,
		u.AlternateEmail, u.OfficePhone, u.MobilePhone, u.FaxNumber,
		u.City, u.Country, u.PostalCode, u.State, u.StreetAddress,
		u.CompanyName, u.UsageLocation, u.Office, u.SignInStatus, u.MFAStatus,
		u.PreferredLanguage, u.DirectReportsCount,
		u.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	_, err = s.exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (
		?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?)`,
		u.ID, u.DisplayName, u.UserPrincipalName, u.Email, u.LicenseStatus, u.Department,
		u.JobTitle, u.FirstName, u.LastName, u.MailNickName, u.UserAddedTime,
		u.AlternateEmail, u.OfficePhone, u.MobilePhone, u.FaxNumber,
		u.City, u.Country, u.PostalCode, u.State, u.StreetAddress,
		u.CompanyName, u.UsageLocation, u.Office, u.SignInStatus, u.MFAStatus,
		u.PreferredLanguage, u.DirectReportsCount,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user %s: %w", u.ID, err)
	}
	return true, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return s.QueryCount(ctx, `SELECT COUNT(*) FROM users`)
}
