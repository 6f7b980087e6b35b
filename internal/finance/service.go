// Package finance handles student fees and their payment ledger, monthly
// tutor payroll and the summary figures built from both.
package finance

import (
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
)

// DefaultHourlyRate pays tutors without a rate of their own.
const DefaultHourlyRate = 500.0

type Options struct {
	Location          *time.Location
	DefaultHourlyRate float64
	Now               func() time.Time
	Logger            *zap.Logger
	Notifier          notify.Notifier
	// Receipt issues receipt numbers; models.NewReceiptNumber when nil.
	Receipt func(time.Time) string
}

type Service struct {
	store       store.Store
	loc         *time.Location
	defaultRate float64
	now         func() time.Time
	log         *zap.Logger
	notifier    notify.Notifier
	receipt     func(time.Time) string
}

func New(st store.Store, o Options) *Service {
	s := &Service{
		store:       st,
		loc:         o.Location,
		defaultRate: o.DefaultHourlyRate,
		now:         o.Now,
		log:         logging.Named(o.Logger, "finance"),
		notifier:    o.Notifier,
		receipt:     o.Receipt,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.defaultRate <= 0 {
		s.defaultRate = DefaultHourlyRate
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.receipt == nil {
		s.receipt = models.NewReceiptNumber
	}
	return s
}

// today is the local calendar day as a UTC midnight, the form DATE columns use.
func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
