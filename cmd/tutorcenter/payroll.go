package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/jobs"
	"github.com/Spok95/tutorcenter/internal/models"
)

var payrollCmd = &cobra.Command{
	Use:   "payroll",
	Short: "Tutor payroll tools",
}

var payrollFlags struct {
	month, year int
	tutor       int64
}

var payrollGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate payroll records for a month",
	Long: `Generates payroll for every active tutor, or one tutor with --tutor,
acting as the system superadmin. Tutors that already have a record for the
month are skipped. Defaults to the previous calendar month.`,
	Args: cobra.NoArgs,
	RunE: runPayrollGenerate,
}

func init() {
	f := payrollGenerateCmd.Flags()
	f.IntVar(&payrollFlags.month, "month", 0, "month 1-12 (default previous month)")
	f.IntVar(&payrollFlags.year, "year", 0, "year (default year of the previous month)")
	f.Int64Var(&payrollFlags.tutor, "tutor", 0, "only this tutor id")
	payrollCmd.AddCommand(payrollGenerateCmd)
}

// period fills unset month/year from the previous calendar month.
func period(month, year int) (int, int) {
	pm, py := jobs.PreviousMonth(time.Now(), cfg.Location)
	if month == 0 {
		month = pm
	}
	if year == 0 {
		year = py
	}
	return month, year
}

func runPayrollGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	actor, err := jobs.SystemActor(ctx, b.store)
	if err != nil {
		return err
	}
	fin := finance.New(b.store, finance.Options{
		Location:          cfg.Location,
		DefaultHourlyRate: cfg.DefaultHourlyRate,
		Logger:            lg.Base,
	})
	month, year := period(payrollFlags.month, payrollFlags.year)
	out := cmd.OutOrStdout()

	if payrollFlags.tutor != 0 {
		rec, err := fin.GeneratePayroll(ctx, actor, payrollFlags.tutor, month, year)
		if err != nil {
			return err
		}
		printPayroll(out, rec)
		return nil
	}

	res, err := fin.GenerateMonthlyPayroll(ctx, actor, month, year)
	if err != nil {
		return err
	}
	for i := range res.Created {
		printPayroll(out, &res.Created[i])
	}
	_, err = fmt.Fprintf(out, "%04d-%02d: %d created, %d skipped\n", year, month, len(res.Created), len(res.Skipped))
	return err
}

func printPayroll(w io.Writer, rec *models.PayrollRecord) {
	fmt.Fprintf(w, "payroll %d: tutor %d, %d classes, net %.2f\n",
		rec.ID, rec.TutorID, rec.TotalClasses, rec.NetAmount)
}
