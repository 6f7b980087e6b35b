// Package accounts manages staff users, departments, students and their
// enrollments with tutors.
package accounts

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
)

const (
	DefaultResetTTL = time.Hour
	// studentCodeAttempts bounds retries when a random student id is taken.
	studentCodeAttempts = 10
)

type Options struct {
	Tokens   store.TokenStore
	ResetTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost; tests lower it.
	BcryptCost  int
	Now         func() time.Time
	Logger      *zap.Logger
	Notifier    notify.Notifier
	StudentCode func(time.Time) string
}

type Service struct {
	store       store.Store
	tokens      store.TokenStore
	resetTTL    time.Duration
	cost        int
	now         func() time.Time
	log         *zap.Logger
	notifier    notify.Notifier
	studentCode func(time.Time) string
}

func New(st store.Store, o Options) *Service {
	s := &Service{
		store:       st,
		tokens:      o.Tokens,
		resetTTL:    o.ResetTTL,
		cost:        o.BcryptCost,
		now:         o.Now,
		log:         logging.Named(o.Logger, "accounts"),
		notifier:    o.Notifier,
		studentCode: o.StudentCode,
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.studentCode == nil {
		s.studentCode = models.NewStudentCode
	}
	return s
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
