package main

import (
	"context"
	"fmt"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Post and cancel ledger documents",
}

var documentPostCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a confirmed document",
	Long: `Posts a confirmed document. Invoices and credit notes are appended to
the hash chain of their company and document type.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := uuidFlag(cmd, "tenant")
		if err != nil {
			return err
		}
		documentID, err := uuidFlag(cmd, "document")
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.postingService().Post(cmd.Context(), tenantID, documentID)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var documentCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a posted document",
	Long:  `Cancels a posted document. It keeps its hash and chain position.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := uuidFlag(cmd, "tenant")
		if err != nil {
			return err
		}
		documentID, err := uuidFlag(cmd, "document")
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.postingService().Cancel(cmd.Context(), tenantID, documentID)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var creditNoteCmd = &cobra.Command{
	Use:   "credit-note",
	Short: "Compute and issue partial credit notes",
}

var creditNoteComputeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Split a gross credit amount into net and tax",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := uuidFlag(cmd, "tenant")
		if err != nil {
			return err
		}
		invoiceID, err := uuidFlag(cmd, "invoice")
		if err != nil {
			return err
		}
		amount, err := decimalFlag(cmd, "amount")
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.creditNoteService().Compute(cmd.Context(), tenantID, invoiceID, amount)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var creditNoteIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Create a draft credit note against a posted invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := uuidFlag(cmd, "tenant")
		if err != nil {
			return err
		}
		invoiceID, err := uuidFlag(cmd, "invoice")
		if err != nil {
			return err
		}
		amount, err := decimalFlag(cmd, "amount")
		if err != nil {
			return err
		}
		date, err := dateFlag(cmd, "date")
		if err != nil {
			return err
		}
		number, _ := cmd.Flags().GetString("number")
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.creditNoteService().Issue(cmd.Context(), appledger.IssueCreditNoteRequest{
			TenantID:       tenantID,
			InvoiceID:      invoiceID,
			DocumentNumber: number,
			DocumentDate:   date,
			Amount:         amount,
			Reason:         reason,
		})
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var verifyChainCmd = &cobra.Command{
	Use:   "verify-chain",
	Short: "Recompute and check one fiscal hash chain",
	Long: `Recompute and check one fiscal hash chain.

With --archive the chain and its report are also exported to the
configured archive store (archive.backend).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := chainScopeFlags(cmd)
		if err != nil {
			return err
		}
		archive, _ := cmd.Flags().GetBool("archive")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var report *appledger.ChainReport
		if archive {
			store, err := a.archiveStore(cmd.Context())
			if err != nil {
				return err
			}
			result, err := appledger.NewChainArchiver(a.documentRepository(), store).Archive(cmd.Context(), scope)
			if err != nil {
				return err
			}
			out := archiveOutput{ArchiveResult: result}
			if presigner, ok := store.(downloadURLer); ok {
				if out.DownloadURL, err = presigner.DownloadURL(cmd.Context(), result.Key, 0); err != nil {
					return err
				}
			}
			if err := printJSON(out); err != nil {
				return err
			}
			report = result.Report
		} else {
			if report, err = a.chainVerifier().Verify(cmd.Context(), scope); err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
		}
		if !report.Valid {
			return fmt.Errorf("chain has %d break(s)", len(report.Breaks))
		}
		return nil
	},
}

type downloadURLer interface {
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}

type archiveOutput struct {
	*appledger.ArchiveResult
	DownloadURL string `json:"download_url,omitempty"`
}

// chainScopeFlags reads --tenant, --company and --type
func chainScopeFlags(cmd *cobra.Command) (ledger.ChainScope, error) {
	tenantID, err := uuidFlag(cmd, "tenant")
	if err != nil {
		return ledger.ChainScope{}, err
	}
	companyID, err := uuidFlag(cmd, "company")
	if err != nil {
		return ledger.ChainScope{}, err
	}
	raw, _ := cmd.Flags().GetString("type")
	docType := ledger.DocumentType(raw)
	if !docType.IsFiscal() {
		return ledger.ChainScope{}, fmt.Errorf("--type must be a fiscal document type, got %q", raw)
	}
	return ledger.ChainScope{TenantID: tenantID, CompanyID: companyID, Type: docType}, nil
}

func init() {
	for _, c := range []*cobra.Command{documentPostCmd, documentCancelCmd} {
		c.Flags().String("tenant", "", "tenant id")
		c.Flags().String("document", "", "document id")
	}
	documentCmd.AddCommand(documentPostCmd, documentCancelCmd)

	for _, c := range []*cobra.Command{creditNoteComputeCmd, creditNoteIssueCmd} {
		c.Flags().String("tenant", "", "tenant id")
		c.Flags().String("invoice", "", "posted invoice id")
		c.Flags().String("amount", "", "gross amount to credit")
	}
	creditNoteIssueCmd.Flags().String("number", "", "credit note document number")
	creditNoteIssueCmd.Flags().String("date", "", "document date, YYYY-MM-DD (default today)")
	creditNoteIssueCmd.Flags().String("reason", "", "reason printed on the credit note")
	creditNoteCmd.AddCommand(creditNoteComputeCmd, creditNoteIssueCmd)

	verifyChainCmd.Flags().String("tenant", "", "tenant id")
	verifyChainCmd.Flags().String("company", "", "company id")
	verifyChainCmd.Flags().String("type", string(ledger.DocumentTypeInvoice), "document type of the chain")
	verifyChainCmd.Flags().Bool("archive", false, "export the chain to the archive store")
}

// decimalFlag reads a required decimal flag
func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return decimal.Zero, err
	}
	if raw == "" {
		return decimal.Zero, fmt.Errorf("--%s is required", name)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: invalid amount %q", name, raw)
	}
	return d, nil
}

// dateFlag reads a YYYY-MM-DD flag, defaulting to today
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, raw)
	}
	return d, nil
}
