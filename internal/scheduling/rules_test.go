package scheduling

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Spok95/tutorcenter/internal/models"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestExpandSchedule_TwoMondays(t *testing.T) {
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // a Monday
	end := monday.AddDate(0, 0, 13)
	e := models.Enrollment{
		Schedule:       []models.ScheduleSlot{{Day: "Monday", Time: "14:00"}},
		SessionMinutes: 60,
		StartDate:      monday,
		EndDate:        &end,
	}
	from, to := Window(e, 0)
	slots, err := ExpandSchedule(e.Schedule, e.SessionDuration(), from, to, ist)
	if err != nil {
		t.Fatal(err)
	}
	want := []Slot{
		{Date: monday, Start: time.Date(2024, 1, 1, 14, 0, 0, 0, ist), End: time.Date(2024, 1, 1, 15, 0, 0, 0, ist)},
		{Date: monday.AddDate(0, 0, 7), Start: time.Date(2024, 1, 8, 14, 0, 0, 0, ist), End: time.Date(2024, 1, 8, 15, 0, 0, 0, ist)},
	}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Fatalf("slots (-want +got):\n%s", diff)
	}
}

func TestExpandSchedule_RepeatedEntryOnce(t *testing.T) {
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	schedule := []models.ScheduleSlot{{Day: "monday", Time: "14:00"}, {Day: "Monday", Time: "14:00"}}
	slots, err := ExpandSchedule(schedule, time.Hour, monday, monday.AddDate(0, 0, 6), ist)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 {
		t.Fatalf("got %d slots, want 1", len(slots))
	}
}

func TestWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 20)
	later := start.AddDate(0, 0, 56)

	cases := []struct {
		name  string
		end   *time.Time
		weeks int
		want  time.Time
	}{
		{"open ended default", nil, 0, start.AddDate(0, 0, 84)},
		{"enrollment end", &end, 0, end},
		{"weeks cap", nil, 2, start.AddDate(0, 0, 14)},
		{"end earlier than weeks", &end, 4, end},
		{"end later than weeks", &later, 4, later},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, to := Window(models.Enrollment{StartDate: start, EndDate: tc.end}, tc.weeks)
			if !to.Equal(tc.want) {
				t.Fatalf("to = %s, want %s", to, tc.want)
			}
		})
	}
}

func TestExpandSchedule_Errors(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := ExpandSchedule([]models.ScheduleSlot{{Day: "funday", Time: "10:00"}}, time.Hour, day, day, ist); err == nil {
		t.Fatal("expected unknown day error")
	}
	if _, err := ExpandSchedule([]models.ScheduleSlot{{Day: "monday", Time: "25:00"}}, time.Hour, day, day, ist); err == nil {
		t.Fatal("expected bad time error")
	}
	if _, err := ExpandSchedule(nil, 0, day, day, ist); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestFindConflict(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, ist) }
	existing := []models.ClassSession{
		{ID: 1, StartsAt: at(14, 0), EndsAt: at(15, 0), Status: models.SessionScheduled},
		{ID: 2, StartsAt: at(16, 0), EndsAt: at(17, 0), Status: models.SessionCancelled},
	}
	cases := []struct {
		name       string
		start, end time.Time
		exclude    int64
		want       int64
	}{
		{"partial overlap after", at(14, 30), at(15, 30), 0, 1},
		{"partial overlap before", at(13, 30), at(14, 30), 0, 1},
		{"contained", at(14, 15), at(14, 45), 0, 1},
		{"containing", at(13, 0), at(16, 0), 0, 1},
		{"adjacent", at(15, 0), at(16, 0), 0, 0},
		{"cancelled ignored", at(16, 0), at(17, 0), 0, 0},
		{"self excluded", at(14, 0), at(15, 0), 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindConflict(existing, tc.start, tc.end, tc.exclude)
			var id int64
			if got != nil {
				id = got.ID
			}
			if id != tc.want {
				t.Fatalf("conflict = %d, want %d", id, tc.want)
			}
		})
	}
}

func TestLatePenalty(t *testing.T) {
	cases := []struct {
		minutes int
		want    float64
	}{
		{0, 0},
		{5, 50},
		{10, 50},
		{12, 125},
		{15, 125},
		{20, 125},
		{21, 250},
		{25, 250},
	}
	for _, tc := range cases {
		if got := LatePenalty(500, tc.minutes); got != tc.want {
			t.Errorf("LatePenalty(500, %d) = %v, want %v", tc.minutes, got, tc.want)
		}
	}
}

func TestLateMinutes(t *testing.T) {
	s := time.Date(2024, 1, 1, 14, 0, 0, 0, ist)
	if got := LateMinutes(s, s.Add(12*time.Minute+20*time.Second)); got != 12 {
		t.Fatalf("got %d", got)
	}
	if got := LateMinutes(s, s.Add(12*time.Minute+40*time.Second)); got != 13 {
		t.Fatalf("got %d", got)
	}
}

func TestCanTransition(t *testing.T) {
	ok := [][2]models.SessionStatus{
		{models.SessionScheduled, models.SessionInProgress},
		{models.SessionScheduled, models.SessionCancelled},
		{models.SessionScheduled, models.SessionRescheduled},
		{models.SessionRescheduled, models.SessionScheduled},
		{models.SessionInProgress, models.SessionCompleted},
	}
	for _, p := range ok {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("%s -> %s should be allowed", p[0], p[1])
		}
	}
	bad := [][2]models.SessionStatus{
		{models.SessionCompleted, models.SessionInProgress},
		{models.SessionCompleted, models.SessionCancelled},
		{models.SessionCancelled, models.SessionScheduled},
		{models.SessionInProgress, models.SessionScheduled},
	}
	for _, p := range bad {
		if CanTransition(p[0], p[1]) {
			t.Errorf("%s -> %s should be rejected", p[0], p[1])
		}
	}
}
