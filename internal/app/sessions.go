package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Spok95/tutorcenter/internal/accounts"
	"github.com/Spok95/tutorcenter/internal/attendance"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/scheduling"
)

// maxUpload caps a multipart upload held in memory before spilling to disk.
const maxUpload = 32 << 20

func (a *API) enrollmentRoutes(r chi.Router) {
	r.Get("/", a.listEnrollments)
	r.Post("/", a.enroll)
	r.Patch("/{id}", a.updateEnrollment)
	r.Post("/{id}/generate", a.generateSessions)
	r.Post("/{id}/end", a.endEnrollment)
}

func (a *API) listEnrollments(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	f := models.EnrollmentFilter{
		StudentID: q.id("student_id"),
		TutorID:   q.id("tutor_id"),
		Status:    models.EnrollmentStatus(q.str("status")),
	}
	if !q.ok(w) {
		return
	}
	es, err := a.Accounts.ListEnrollments(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, es)
}

func (a *API) enroll(w http.ResponseWriter, r *http.Request) {
	var in accounts.EnrollInput
	if !decode(w, r, &in) {
		return
	}
	e, err := a.Accounts.Enroll(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) updateEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in accounts.UpdateEnrollmentInput
	if !decode(w, r, &in) {
		return
	}
	e, err := a.Accounts.UpdateEnrollment(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) generateSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Weeks int `json:"weeks"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := a.Scheduling.GenerateFromEnrollment(r.Context(), actor(r), id, req.Weeks)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type endEnrollmentResponse struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Cancelled  int                `json:"cancelled_sessions"`
}

func (a *API) endEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	e, n, err := a.Accounts.EndEnrollment(r.Context(), actor(r), id, models.EnrollmentStatus(req.Status))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endEnrollmentResponse{Enrollment: e, Cancelled: n})
}

func (a *API) sessionRoutes(r chi.Router) {
	r.Get("/", a.listSessions)
	r.Post("/", a.createSession)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", a.getSession)
		r.Patch("/", a.updateSession)
		r.Post("/start", a.startSession)
		r.Post("/complete", a.completeSession)
		r.Post("/cancel", a.cancelSession)
		r.Post("/reschedule", a.rescheduleSession)
		r.Get("/attendance", a.listAttendance)
		r.Post("/attendance", a.markAttendance)
		r.Post("/feedback", a.submitFeedback)
		r.Post("/recording", a.uploadRecording)
		r.Post("/materials", a.uploadMaterials)
		r.Get("/compliance", a.sessionCompliance)
	})
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	f := models.SessionFilter{
		TutorID:      q.id("tutor_id"),
		StudentID:    q.id("student_id"),
		EnrollmentID: q.id("enrollment_id"),
		DepartmentID: q.id("department_id"),
		From:         q.date("from"),
		To:           q.date("to"),
		Limit:        q.num("limit", 0),
	}
	for _, s := range q.list("status") {
		f.Statuses = append(f.Statuses, models.SessionStatus(s))
	}
	if !q.ok(w) {
		return
	}
	ss, err := a.Scheduling.ListSessions(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ss)
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var in scheduling.CreateSessionInput
	if !decode(w, r, &in) {
		return
	}
	s, err := a.Scheduling.CreateSession(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := a.Scheduling.GetSession(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) updateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in scheduling.UpdateSessionInput
	if !decode(w, r, &in) {
		return
	}
	s, err := a.Scheduling.UpdateSession(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := a.Scheduling.StartSession(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) completeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := a.Scheduling.CompleteSession(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) cancelSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	s, err := a.Scheduling.CancelSession(r.Context(), actor(r), id, req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) rescheduleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in scheduling.RescheduleInput
	if !decode(w, r, &in) {
		return
	}
	s, err := a.Scheduling.RescheduleSession(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) listAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := a.Attendance.ListAttendance(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) markAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in attendance.MarkAttendanceInput
	if !decode(w, r, &in) {
		return
	}
	in.SessionID = id
	rec, err := a.Attendance.MarkAttendance(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) submitFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in attendance.FeedbackInput
	if !decode(w, r, &in) {
		return
	}
	in.SessionID = id
	s, err := a.Attendance.SubmitFeedback(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// uploadRecording takes a multipart "file" part.
func (a *API) uploadRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = f.Close() }()
	defer a.uploads.lock(id)()
	s, err := a.Attendance.UploadRecording(r.Context(), actor(r), id, hdr.Filename, f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// uploadMaterials takes one or more multipart "files" parts.
func (a *API) uploadMaterials(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		badRequest(w, "invalid multipart body")
		return
	}
	var uploads []attendance.Upload
	for _, hdr := range r.MultipartForm.File["files"] {
		f, err := hdr.Open()
		if err != nil {
			a.fail(w, r, err)
			return
		}
		defer func() { _ = f.Close() }()
		uploads = append(uploads, attendance.Upload{Name: hdr.Filename, Body: f})
	}
	if len(uploads) == 0 {
		badRequest(w, "multipart field \"files\" is required")
		return
	}
	defer a.uploads.lock(id)()
	s, err := a.Attendance.UploadMaterials(r.Context(), actor(r), id, uploads)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) sessionCompliance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := a.Attendance.SessionCompliance(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) complianceRoutes(r chi.Router) {
	r.Get("/", a.listCompliance)
	r.Get("/rate", a.complianceRate)
	r.Get("/overdue", a.overdueCompliance)
}

func (a *API) rateFilter(w http.ResponseWriter, r *http.Request) (attendance.RateFilter, bool) {
	q := a.query(r)
	f := attendance.RateFilter{TutorID: q.id("tutor_id"), DepartmentID: q.id("department_id")}
	if from := q.date("from"); from != nil {
		f.From = *from
	}
	if to := q.date("to"); to != nil {
		f.To = *to
	}
	return f, q.ok(w)
}

func (a *API) listCompliance(w http.ResponseWriter, r *http.Request) {
	f, ok := a.rateFilter(w, r)
	if !ok {
		return
	}
	items, err := a.Attendance.ListCompliance(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) complianceRate(w http.ResponseWriter, r *http.Request) {
	f, ok := a.rateFilter(w, r)
	if !ok {
		return
	}
	rate, err := a.Attendance.ComplianceRate(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"rate": rate})
}

func (a *API) overdueCompliance(w http.ResponseWriter, r *http.Request) {
	ss, err := a.Attendance.OverdueSessions(r.Context(), actor(r), a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ss)
}
