package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateOfferToken persists a single-use account offer token for the
// given email address and returns it.
func (u *UserDB) CreateOfferToken(ctx context.Context, email string) (string, error) {
	token := uuid.New().String()

	_, err := u.DB.ExecContext(ctx,
		`INSERT INTO offer_tokens (token, email) VALUES ($1, $2)`,
		token, email)
	if err != nil {
		return "", fmt.Errorf("error creating offer token: %w", err)
	}
	return token, nil
}
