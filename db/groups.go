package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/trackhive/user-services/models"
)

// GetGroupByName retrieves a group by its unique name. Returns nil
// without error when no such group exists.
func (u *UserDB) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	row := u.reader().QueryRowContext(ctx,
		`SELECT id, name, description FROM groups WHERE name = $1`, name)

	var g models.Group
	if err := row.Scan(&g.ID, &g.Name, &g.Description); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error scanning group: %w", err)
	}
	return &g, nil
}

// GetGroupsByIDs retrieves the groups with the given ids. Missing ids are
// simply absent from the result.
func (u *UserDB) GetGroupsByIDs(ctx context.Context, ids []int64) ([]models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := u.reader().QueryContext(ctx,
		`SELECT id, name, description FROM groups WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error retrieving groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description); err != nil {
			return nil, fmt.Errorf("error scanning groups: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetMemberships retrieves a user's group memberships with the bless flag.
func (u *UserDB) GetMemberships(ctx context.Context, userID int64) ([]models.Membership, error) {
	rows, err := u.reader().QueryContext(ctx, `
		SELECT g.id, g.name, g.description, m.can_bless
		FROM user_group_map m
		JOIN groups g ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY g.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.Group.ID, &m.Group.Name, &m.Group.Description, &m.CanBless); err != nil {
			return nil, fmt.Errorf("error scanning memberships: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// UserInAnyGroup reports whether the user belongs to at least one of the
// given groups.
func (u *UserDB) UserInAnyGroup(ctx context.Context, userID int64, groupIDs []int64) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}

	var exists bool
	err := u.reader().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_group_map WHERE user_id = $1 AND group_id = ANY($2))`,
		userID, pq.Array(groupIDs)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking group membership: %w", err)
	}
	return exists, nil
}
