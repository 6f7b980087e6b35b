package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

var errNoTokenStore = errors.New("accounts: no reset token store configured")

// RequestPasswordReset mails a single-use token to the account with that
// email. Unknown or inactive addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.tokens == nil {
		return errNoTokenStore
	}
	log := logging.FromContext(ctx, s.log)
	u, err := store.Read(ctx, s.store, func(tx store.Tx) (*models.User, error) {
		return tx.GetUserByLogin(ctx, email)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		log.Info("password reset for unknown address")
		return nil
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		log.Info("password reset for inactive user", zap.Int64("user_id", u.ID))
		return nil
	}

	token := uuid.NewString()
	expires := s.now().Add(s.resetTTL)
	if err := s.tokens.PutToken(ctx, token, store.ResetToken{UserID: u.ID, ExpiresAt: expires}); err != nil {
		return err
	}
	log.Info("password reset requested", zap.Int64("user_id", u.ID))
	notify.Send(ctx, s.notifier, log, *u, notify.PasswordReset, notify.Payload{
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
	})
	return nil
}

type ResetPasswordInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// ResetPassword consumes the token and sets the new password. A token
// works once, even when the reset itself fails afterwards.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if s.tokens == nil {
		return errNoTokenStore
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	t, ok, err := s.tokens.TakeToken(ctx, in.Token)
	if err != nil {
		return err
	}
	if !ok || !s.now().Before(t.ExpiresAt) {
		return apperr.Invalid("token", "reset token is invalid or expired")
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.LockUser(ctx, t.UserID)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		u.FailedLoginAttempts = 0
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.log).Info("password reset", zap.Int64("user_id", t.UserID))
	return nil
}
