package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutorcenter/internal/attendance"
	"github.com/Spok95/tutorcenter/internal/export"
	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/jobs"
	"github.com/Spok95/tutorcenter/internal/models"
)

var exportFlags struct {
	out         string
	month, year int
	department  int64
	statuses    []string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write reports as .xlsx workbooks",
}

var exportPayrollCmd = &cobra.Command{
	Use:   "payroll",
	Short: "Payroll records for a month",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		month, year := period(exportFlags.month, exportFlags.year)
		return runExport(cmd, func(ctx context.Context, e *export.Exporter, actor *models.User) (*export.Workbook, error) {
			return e.Payroll(ctx, actor, month, year)
		})
	},
}

var exportFeesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Student fees with their current payment status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var f models.FeeFilter
		if exportFlags.department != 0 {
			f.DepartmentID = &exportFlags.department
		}
		for _, s := range exportFlags.statuses {
			f.Statuses = append(f.Statuses, models.PaymentStatus(s))
		}
		return runExport(cmd, func(ctx context.Context, e *export.Exporter, actor *models.User) (*export.Workbook, error) {
			return e.Fees(ctx, actor, f)
		})
	},
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportFlags.out, "out", "o", ".", "directory to write the workbook to")

	pf := exportPayrollCmd.Flags()
	pf.IntVar(&exportFlags.month, "month", 0, "month 1-12 (default previous month)")
	pf.IntVar(&exportFlags.year, "year", 0, "year (default year of the previous month)")

	ff := exportFeesCmd.Flags()
	ff.Int64Var(&exportFlags.department, "department", 0, "only this department id")
	ff.StringSliceVar(&exportFlags.statuses, "status", nil, "pending, partial, paid or overdue; repeatable")

	exportCmd.AddCommand(exportPayrollCmd, exportFeesCmd)
}

type report func(ctx context.Context, e *export.Exporter, actor *models.User) (*export.Workbook, error)

// runExport builds the report as the system superadmin and saves it under
// --out.
func runExport(cmd *cobra.Command, build report) error {
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
	att := attendance.New(b.store, attendance.Options{Logger: lg.Base})
	e := export.New(b.store, fin, att, cfg.Location, lg.Base)

	wb, err := build(ctx, e, actor)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()
	path, err := wb.SaveIn(exportFlags.out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
	return err
}
