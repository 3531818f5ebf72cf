package main

import (
	"fmt"
	"strings"

	apppayment "github.com/erp/ledger/internal/application/payment"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Record, allocate and void partner payments",
}

var paymentRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record money received from a partner",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req apppayment.RecordPaymentRequest
		var err error
		if req.TenantID, err = uuidFlag(cmd, "tenant"); err != nil {
			return err
		}
		if req.CompanyID, err = uuidFlag(cmd, "company"); err != nil {
			return err
		}
		if req.PartnerID, err = uuidFlag(cmd, "partner"); err != nil {
			return err
		}
		if req.Amount, err = decimalFlag(cmd, "amount"); err != nil {
			return err
		}
		if req.PaymentDate, err = dateFlag(cmd, "date"); err != nil {
			return err
		}
		if req.PaymentMethodID, err = optionalUUIDFlag(cmd, "method-id"); err != nil {
			return err
		}
		if req.RepositoryID, err = optionalUUIDFlag(cmd, "repository-id"); err != nil {
			return err
		}
		req.Currency, _ = cmd.Flags().GetString("currency")
		req.Reference, _ = cmd.Flags().GetString("reference")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.paymentService().Record(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var paymentPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show how an amount would be allocated, without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req apppayment.PreviewRequest
		var err error
		if req.TenantID, err = uuidFlag(cmd, "tenant"); err != nil {
			return err
		}
		if req.CompanyID, err = uuidFlag(cmd, "company"); err != nil {
			return err
		}
		if req.PartnerID, err = uuidFlag(cmd, "partner"); err != nil {
			return err
		}
		if req.Amount, err = decimalFlag(cmd, "amount"); err != nil {
			return err
		}
		if req.PaymentDate, err = dateFlag(cmd, "date"); err != nil {
			return err
		}
		if req.Method, req.Manual, err = allocationFlags(cmd); err != nil {
			return err
		}
		req.Currency, _ = cmd.Flags().GetString("currency")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.allocationService()
		if err != nil {
			return err
		}
		plan, err := svc.Preview(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(plan)
	},
}

var paymentApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Allocate a recorded payment over open invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req apppayment.ApplyRequest
		var err error
		if req.TenantID, err = uuidFlag(cmd, "tenant"); err != nil {
			return err
		}
		if req.PaymentID, err = uuidFlag(cmd, "payment"); err != nil {
			return err
		}
		if req.Method, req.Manual, err = allocationFlags(cmd); err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.allocationService()
		if err != nil {
			return err
		}
		res, err := svc.Apply(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var paymentVoidCmd = &cobra.Command{
	Use:   "void",
	Short: "Void a payment that has not been applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := uuidFlag(cmd, "tenant")
		if err != nil {
			return err
		}
		paymentID, err := uuidFlag(cmd, "payment")
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.paymentService().Void(cmd.Context(), tenantID, paymentID)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

func init() {
	for _, c := range []*cobra.Command{paymentRecordCmd, paymentPreviewCmd} {
		c.Flags().String("tenant", "", "tenant id")
		c.Flags().String("company", "", "company id")
		c.Flags().String("partner", "", "paying partner id")
		c.Flags().String("amount", "", "amount received")
		c.Flags().String("currency", "EUR", "ISO 4217 currency code")
		c.Flags().String("date", "", "payment date, YYYY-MM-DD (default today)")
	}
	paymentRecordCmd.Flags().String("method-id", "", "payment method id")
	paymentRecordCmd.Flags().String("repository-id", "", "bank or cash repository id")
	paymentRecordCmd.Flags().String("reference", "", "bank reference")

	for _, c := range []*cobra.Command{paymentPreviewCmd, paymentApplyCmd} {
		c.Flags().String("method", "", "allocation method: fifo, due_date or manual (default from the registry)")
		c.Flags().StringSlice("allocate", nil, "manual target as DOCUMENT_ID=AMOUNT, repeatable")
	}
	for _, c := range []*cobra.Command{paymentApplyCmd, paymentVoidCmd} {
		c.Flags().String("tenant", "", "tenant id")
		c.Flags().String("payment", "", "payment id")
	}

	paymentCmd.AddCommand(paymentRecordCmd, paymentPreviewCmd, paymentApplyCmd, paymentVoidCmd)
}

// allocationFlags reads --method and the repeated --allocate targets.
// Targets without an explicit method select manual allocation.
func allocationFlags(cmd *cobra.Command) (strategy.AllocationMethod, []apppayment.ManualAllocationRequest, error) {
	method, _ := cmd.Flags().GetString("method")
	targets, _ := cmd.Flags().GetStringSlice("allocate")

	manual := make([]apppayment.ManualAllocationRequest, 0, len(targets))
	for _, t := range targets {
		rawID, rawAmount, ok := strings.Cut(t, "=")
		if !ok {
			return "", nil, fmt.Errorf("--allocate: expected DOCUMENT_ID=AMOUNT, got %q", t)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return "", nil, fmt.Errorf("--allocate: %w", err)
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return "", nil, fmt.Errorf("--allocate: invalid amount %q", rawAmount)
		}
		manual = append(manual, apppayment.ManualAllocationRequest{DocumentID: id, Amount: amount})
	}

	if method == "" && len(manual) > 0 {
		method = string(strategy.AllocationMethodManual)
	}
	return strategy.AllocationMethod(method), manual, nil
}

// optionalUUIDFlag reads a UUID flag that may be left empty
func optionalUUIDFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", name, err)
	}
	return id, nil
}
