package db

import (
	"context"

	"github.com/Spok95/tutorcenter/internal/models"
)

func (t *pgTx) ListAvailability(ctx context.Context, tutorID int64) ([]models.AvailabilitySlot, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, tutor_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM tutor_availability WHERE tutor_id = $1 ORDER BY id`, tutorID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(s scanner) (models.AvailabilitySlot, error) {
		var a models.AvailabilitySlot
		err := s.Scan(&a.ID, &a.TutorID, &a.Day, &a.Start, &a.End)
		return a, err
	})
}

func (t *pgTx) ReplaceAvailability(ctx context.Context, tutorID int64, slots []models.AvailabilitySlot) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM tutor_availability WHERE tutor_id = $1`, tutorID); err != nil {
		return err
	}
	for i := range slots {
		a := &slots[i]
		a.TutorID = tutorID
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO tutor_availability (tutor_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3::time, $4::time)
			RETURNING id
		`, tutorID, a.Day, a.Start, a.End).Scan(&a.ID)
		if err != nil {
			return mapErr("availability", err)
		}
	}
	return nil
}
