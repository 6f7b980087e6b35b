package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
)

func TestSplitFee_PayInstallments(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	fee := f.fee(t, 1000, "2024-03-31")

	parts, err := f.svc.SplitFee(ctx, f.finance, fee.ID, SplitFeeInput{Installments: []InstallmentInput{
		{Amount: 400, DueDate: "2024-01-15"},
		{Amount: 600, DueDate: "2024-02-15"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 || parts[0].Number != 1 || parts[1].Number != 2 {
		t.Fatalf("installments = %+v", parts)
	}

	res, err := f.svc.PayInstallment(ctx, f.finance, parts[0].ID, InstallmentPaymentInput{Method: "upi", TransactionID: "UPI-1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fee.PaidAmount != 400 || res.Fee.Status != models.PaymentPartial || res.Payment.Amount != 400 {
		t.Fatalf("after first installment: fee %+v payment %+v", res.Fee, res.Payment)
	}
	if res.Installment == nil || res.Installment.Status != models.InstallmentPaid || *res.Installment.PaymentID != res.Payment.ID {
		t.Fatalf("installment = %+v", res.Installment)
	}
	if _, err := f.svc.PayInstallment(ctx, f.finance, parts[0].ID, InstallmentPaymentInput{Method: "upi"}); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("paying twice: got %v", err)
	}

	// the second part is late by Feb 20
	f.now = time.Date(2024, 2, 20, 10, 0, 0, 0, ist)
	list, err := f.svc.ListInstallments(ctx, f.finance, fee.ID)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Status != models.InstallmentPaid || list[1].Status != models.InstallmentOverdue {
		t.Fatalf("statuses = %s, %s", list[0].Status, list[1].Status)
	}

	res, err = f.svc.PayInstallment(ctx, f.finance, parts[1].ID, InstallmentPaymentInput{Method: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fee.Status != models.PaymentPaid || res.Fee.PendingAmount != 0 {
		t.Fatalf("fee after last installment = %+v", res.Fee)
	}
}

func TestSplitFee_Rejections(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	fee := f.fee(t, 1000, "2024-03-31")

	cases := []struct {
		name  string
		parts []InstallmentInput
	}{
		{"single part", []InstallmentInput{{Amount: 1000, DueDate: "2024-01-15"}}},
		{"short of pending", []InstallmentInput{{Amount: 400, DueDate: "2024-01-15"}, {Amount: 500, DueDate: "2024-02-15"}}},
		{"out of order", []InstallmentInput{{Amount: 500, DueDate: "2024-02-15"}, {Amount: 500, DueDate: "2024-01-15"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SplitFee(ctx, f.finance, fee.ID, SplitFeeInput{Installments: tc.parts})
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("got %v", err)
			}
		})
	}

	even := SplitFeeInput{Installments: []InstallmentInput{{Amount: 500, DueDate: "2024-01-15"}, {Amount: 500, DueDate: "2024-02-15"}}}
	if _, err := f.svc.SplitFee(ctx, f.tutor, fee.ID, even); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("tutor: got %v", err)
	}
	if _, err := f.svc.SplitFee(ctx, f.finance, fee.ID, even); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SplitFee(ctx, f.finance, fee.ID, even); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("second split: got %v", err)
	}
}
