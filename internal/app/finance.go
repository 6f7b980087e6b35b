package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Spok95/tutorcenter/internal/export"
	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/models"
)

func (a *API) feeRoutes(r chi.Router) {
	r.Get("/", a.listFees)
	r.Post("/", a.createFee)
	r.Get("/{id}", a.getFee)
	r.Post("/{id}/payments", a.payFee)
	r.Post("/{id}/late-fee", a.applyLateFee)
	r.Post("/{id}/discount", a.applyDiscount)
	r.Get("/{id}/installments", a.listInstallments)
	r.Post("/{id}/installments", a.splitFee)
	r.Post("/installments/{id}/pay", a.payInstallment)
}

func (a *API) feeFilter(w http.ResponseWriter, r *http.Request) (models.FeeFilter, bool) {
	q := a.query(r)
	f := models.FeeFilter{
		StudentID:    q.id("student_id"),
		DepartmentID: q.id("department_id"),
		DueBefore:    q.date("due_before"),
	}
	for _, s := range q.list("status") {
		f.Statuses = append(f.Statuses, models.PaymentStatus(s))
	}
	return f, q.ok(w)
}

func (a *API) listFees(w http.ResponseWriter, r *http.Request) {
	f, ok := a.feeFilter(w, r)
	if !ok {
		return
	}
	fees, err := a.Finance.ListFees(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (a *API) createFee(w http.ResponseWriter, r *http.Request) {
	var in finance.CreateFeeInput
	if !decode(w, r, &in) {
		return
	}
	fee, err := a.Finance.CreateFee(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fee)
}

func (a *API) getFee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fee, err := a.Finance.GetFee(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

func (a *API) payFee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in finance.PaymentInput
	if !decode(w, r, &in) {
		return
	}
	res, err := a.Finance.ProcessPayment(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) listInstallments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := a.Finance.ListInstallments(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) splitFee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in finance.SplitFeeInput
	if !decode(w, r, &in) {
		return
	}
	list, err := a.Finance.SplitFee(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (a *API) payInstallment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in finance.InstallmentPaymentInput
	if !decode(w, r, &in) {
		return
	}
	res, err := a.Finance.PayInstallment(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type adjustment struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

func (a *API) applyLateFee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req adjustment
	if !decode(w, r, &req) {
		return
	}
	fee, err := a.Finance.ApplyLateFee(r.Context(), actor(r), id, req.Amount)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

func (a *API) applyDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req adjustment
	if !decode(w, r, &req) {
		return
	}
	fee, err := a.Finance.ApplyDiscount(r.Context(), actor(r), id, req.Amount, req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

func (a *API) payrollRoutes(r chi.Router) {
	r.Get("/", a.listPayroll)
	r.Post("/generate", a.generatePayroll)
	r.Get("/{id}", a.getPayroll)
	r.Post("/{id}/adjust", a.adjustPayroll)
	r.Post("/{id}/pay", a.payPayroll)
	r.Post("/{id}/hold", a.payrollAction(a.Finance.HoldPayroll))
	r.Post("/{id}/release", a.payrollAction(a.Finance.ReleasePayroll))
}

func (a *API) listPayroll(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	f := models.PayrollFilter{
		TutorID: q.id("tutor_id"),
		Month:   q.num("month", 0),
		Year:    q.num("year", 0),
		Status:  models.PayrollStatus(q.str("status")),
	}
	if !q.ok(w) {
		return
	}
	recs, err := a.Finance.ListPayroll(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type generatePayrollRequest struct {
	// TutorID limits the run to one tutor; the whole staff otherwise.
	TutorID *int64 `json:"tutor_id"`
	Month   int    `json:"month"`
	Year    int    `json:"year"`
}

func (a *API) generatePayroll(w http.ResponseWriter, r *http.Request) {
	var req generatePayrollRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TutorID != nil {
		rec, err := a.Finance.GeneratePayroll(r.Context(), actor(r), *req.TutorID, req.Month, req.Year)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
		return
	}
	res, err := a.Finance.GenerateMonthlyPayroll(r.Context(), actor(r), req.Month, req.Year)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) getPayroll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := a.Finance.GetPayroll(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) adjustPayroll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in finance.AdjustInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := a.Finance.AdjustPayroll(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) payPayroll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in finance.PayoutInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := a.Finance.MarkPayrollPaid(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) payrollAction(op func(ctx context.Context, actor *models.User, id int64) (*models.PayrollRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rec, err := op(r.Context(), actor(r), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (a *API) financeRoutes(r chi.Router) {
	r.Get("/health", a.financeHealth)
	r.Get("/summary", a.financeSummary)
	r.Get("/expenses", a.listExpenses)
	r.Post("/expenses", a.createExpense)
	r.Post("/expenses/{id}/approve", a.expenseAction(a.Finance.ApproveExpense))
	r.Post("/expenses/{id}/reject", a.expenseAction(a.Finance.RejectExpense))
}

func (a *API) listExpenses(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	f := models.ExpenseFilter{
		Status:   models.ApprovalStatus(q.str("status")),
		Category: q.str("category"),
		From:     calendarDay(q.date("from")),
		To:       calendarDay(q.date("to")),
	}
	if !q.ok(w) {
		return
	}
	list, err := a.Finance.ListExpenses(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// calendarDay maps a local date to the UTC midnight DATE columns hold.
func calendarDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}

func (a *API) createExpense(w http.ResponseWriter, r *http.Request) {
	var in finance.ExpenseInput
	if !decode(w, r, &in) {
		return
	}
	e, err := a.Finance.CreateExpense(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) expenseAction(op func(context.Context, *models.User, int64) (*models.ExpenseRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		e, err := op(r.Context(), actor(r), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func (a *API) financeHealth(w http.ResponseWriter, r *http.Request) {
	h, err := a.Finance.HealthScore(r.Context(), actor(r), a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *API) financeSummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.Finance.Summary(r.Context(), actor(r), a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) exportRoutes(r chi.Router) {
	r.Get("/payroll", a.exportPayroll)
	r.Get("/fees", a.exportFees)
	r.Get("/compliance", a.exportCompliance)
}

func (a *API) sendWorkbook(w http.ResponseWriter, r *http.Request, wb *export.Workbook, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer func() { _ = wb.Close() }()
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+wb.Name+`"`)
	_, _ = wb.WriteTo(w)
}

func (a *API) exportPayroll(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	now := a.now().In(a.loc)
	month, year := q.num("month", int(now.Month())), q.num("year", now.Year())
	if !q.ok(w) {
		return
	}
	wb, err := a.Export.Payroll(r.Context(), actor(r), month, year)
	a.sendWorkbook(w, r, wb, err)
}

func (a *API) exportFees(w http.ResponseWriter, r *http.Request) {
	f, ok := a.feeFilter(w, r)
	if !ok {
		return
	}
	wb, err := a.Export.Fees(r.Context(), actor(r), f)
	a.sendWorkbook(w, r, wb, err)
}

func (a *API) exportCompliance(w http.ResponseWriter, r *http.Request) {
	f, ok := a.rateFilter(w, r)
	if !ok {
		return
	}
	if f.From.IsZero() || f.To.IsZero() {
		y, m, _ := a.now().In(a.loc).Date()
		f.From, f.To = models.MonthBounds(y, int(m), a.loc)
	}
	wb, err := a.Export.Compliance(r.Context(), actor(r), f)
	a.sendWorkbook(w, r, wb, err)
}
