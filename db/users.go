package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trackhive/user-services/internal/match"
	"github.com/trackhive/user-services/models"
)

const userColumns = `id, login, display_name, nickname, enabled, credential_hash,
	password_change_required, email_enabled, disabled_reason, mfa_enabled,
	external_handle, last_seen_at, created_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(
		&u.ID,
		&u.Login,
		&u.DisplayName,
		&u.Nickname,
		&u.Enabled,
		&u.CredentialHash,
		&u.PasswordChangeRequired,
		&u.EmailEnabled,
		&u.DisabledReason,
		&u.MFAEnabled,
		&u.ExternalHandle,
		&u.LastSeenAt,
		&u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByLogin retrieves a user by exact case-insensitive login match.
// Returns nil without error when no such user exists.
func (u *UserDB) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(login) = LOWER($1)`, userColumns)
	row := u.reader().QueryRowContext(ctx, query, login)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error scanning user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id. Returns nil without error when no
// such user exists.
func (u *UserDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	row := u.reader().QueryRowContext(ctx, query, id)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error scanning user: %w", err)
	}
	return user, nil
}

// likeEscape escapes LIKE metacharacters so user input only ever
// prefix-matches literally.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// MatchUsers runs a case-insensitive prefix match over the fields named by
// the classified query, capped at limit and ordered by most recent
// activity. Disabled accounts are excluded unless includeDisabled is set,
// except when their login is an exact match for the query text.
func (u *UserDB) MatchUsers(ctx context.Context, q match.Query, limit int, includeDisabled bool) ([]models.User, error) {
	if q.Prefix == "" || len(q.Fields) == 0 {
		return nil, nil
	}

	pattern := likeEscape(strings.ToLower(q.Prefix)) + "%"

	conds := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		conds = append(conds, fmt.Sprintf("LOWER(%s) LIKE $1", f))
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE (%s)`, userColumns, strings.Join(conds, " OR "))
	args := []interface{}{pattern}

	if !includeDisabled {
		query += ` AND (enabled OR LOWER(login) = LOWER($2))`
		args = append(args, q.Prefix)
	}

	query += fmt.Sprintf(` ORDER BY last_seen_at DESC NULLS LAST, login ASC LIMIT %d`, limit)

	rows, err := u.reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error matching users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning users: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// CreateUser inserts a new user and returns it with the assigned id.
func (u *UserDB) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	tx, err := u.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}

	createdAt := time.Now().UTC()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (login, display_name, nickname, enabled, credential_hash, external_handle, created_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6)
		RETURNING id`,
		user.Login, user.DisplayName, user.Nickname, user.CredentialHash, user.ExternalHandle, createdAt).Scan(&user.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error inserting user: %w", err)
	}

	if err := u.CommitTransaction(tx); err != nil {
		return nil, err
	}

	user.Enabled = true
	user.CreatedAt = createdAt
	return user, nil
}

// TouchLastSeen refreshes a user's last activity timestamp.
func (u *UserDB) TouchLastSeen(ctx context.Context, userID int64) error {
	_, err := u.DB.ExecContext(ctx,
		`UPDATE users SET last_seen_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("error updating last_seen_at: %w", err)
	}
	return nil
}

// SavedSearches retrieves a user's saved searches ordered by name.
func (u *UserDB) SavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error) {
	rows, err := u.reader().QueryContext(ctx,
		`SELECT id, name, query FROM saved_searches WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving saved searches: %w", err)
	}
	defer rows.Close()

	var searches []models.SavedSearch
	for rows.Next() {
		var s models.SavedSearch
		if err := rows.Scan(&s.ID, &s.Name, &s.Query); err != nil {
			return nil, fmt.Errorf("error scanning saved searches: %w", err)
		}
		searches = append(searches, s)
	}
	return searches, rows.Err()
}

// ApplyUserUpdates applies every update plan inside a single transaction:
// either all targets' changes commit together, or none are persisted.
func (u *UserDB) ApplyUserUpdates(ctx context.Context, updates []models.UserUpdate) error {
	tx, err := u.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	for _, up := range updates {
		if err := u.applyUserUpdate(tx, up); err != nil {
			tx.Rollback()
			return err
		}
	}

	return u.CommitTransaction(tx)
}

func (u *UserDB) applyUserUpdate(tx *sql.Tx, up models.UserUpdate) error {
	type fieldSet struct {
		column string
		value  interface{}
	}

	var sets []fieldSet
	if up.SetLogin != nil {
		sets = append(sets, fieldSet{"login", *up.SetLogin})
	}
	if up.SetDisplayName != nil {
		sets = append(sets, fieldSet{"display_name", *up.SetDisplayName})
	}
	if up.SetDisabledReason != nil {
		sets = append(sets, fieldSet{"disabled_reason", *up.SetDisabledReason})
		enabled := *up.SetDisabledReason == ""
		sets = append(sets, fieldSet{"enabled", enabled})
	}
	if up.SetCredentialHash != nil {
		sets = append(sets, fieldSet{"credential_hash", *up.SetCredentialHash})
	}
	if up.SetEmailEnabled != nil {
		sets = append(sets, fieldSet{"email_enabled", *up.SetEmailEnabled})
	}

	if len(sets) > 0 {
		assigns := make([]string, 0, len(sets))
		args := make([]interface{}, 0, len(sets)+1)
		for i, fs := range sets {
			assigns = append(assigns, fmt.Sprintf("%s = $%d", fs.column, i+1))
			args = append(args, fs.value)
		}
		args = append(args, up.UserID)

		query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(assigns, ", "), len(args))
		if err := u.execQuery(tx, query, args...); err != nil {
			return fmt.Errorf("error updating user %d: %w", up.UserID, err)
		}
	}

	for _, groupID := range up.GroupAdds {
		err := u.execQuery(tx, `
			INSERT INTO user_group_map (user_id, group_id, can_bless)
			VALUES ($1, $2, FALSE)
			ON CONFLICT (user_id, group_id) DO NOTHING`,
			up.UserID, groupID)
		if err != nil {
			return fmt.Errorf("error adding user %d to group %d: %w", up.UserID, groupID, err)
		}
	}

	for _, groupID := range up.GroupRemoves {
		err := u.execQuery(tx,
			`DELETE FROM user_group_map WHERE user_id = $1 AND group_id = $2`,
			up.UserID, groupID)
		if err != nil {
			return fmt.Errorf("error removing user %d from group %d: %w", up.UserID, groupID, err)
		}
	}

	for _, groupID := range up.BlessAdds {
		err := u.execQuery(tx, `
			INSERT INTO user_group_map (user_id, group_id, can_bless)
			VALUES ($1, $2, TRUE)
			ON CONFLICT (user_id, group_id) DO UPDATE SET can_bless = TRUE`,
			up.UserID, groupID)
		if err != nil {
			return fmt.Errorf("error granting bless on group %d to user %d: %w", groupID, up.UserID, err)
		}
	}

	for _, groupID := range up.BlessRemoves {
		err := u.execQuery(tx,
			`UPDATE user_group_map SET can_bless = FALSE WHERE user_id = $1 AND group_id = $2`,
			up.UserID, groupID)
		if err != nil {
			return fmt.Errorf("error revoking bless on group %d from user %d: %w", groupID, up.UserID, err)
		}
	}

	return nil
}
