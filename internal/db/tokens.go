package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/tutorcenter/internal/store"
)

func (p *Postgres) PutToken(ctx context.Context, token string, t store.ResetToken) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, t.UserID, t.ExpiresAt)
	return mapErr("reset_token", err)
}

// TakeToken consumes the token; a second call with the same token finds nothing.
func (p *Postgres) TakeToken(ctx context.Context, token string) (store.ResetToken, bool, error) {
	var t store.ResetToken
	err := p.db.QueryRowContext(ctx, `
		DELETE FROM password_reset_tokens WHERE token = $1 RETURNING user_id, expires_at
	`, token).Scan(&t.UserID, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ResetToken{}, false, nil
	}
	if err != nil {
		return store.ResetToken{}, false, err
	}
	return t, true, nil
}

// PurgeExpiredTokens removes tokens past their expiry and returns how many went.
func (p *Postgres) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
