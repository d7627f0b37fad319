package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/stockledger/internal/adapter/http/dto"
)

// errNotReconciled makes the process exit non-zero when drift is found.
var errNotReconciled = errors.New("subject is not reconciled")

type options struct {
	baseURL string
	timeout time.Duration
	asJSON  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "stockledger-cli",
		Short:         "StockLedger CLI tool",
		Long:          `A command line interface for interacting with the StockLedger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the StockLedger API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print raw JSON")

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}
	ledgerCmd.AddCommand(reconcileCmd(opts), balanceCmd(opts), entriesCmd(opts))
	rootCmd.AddCommand(ledgerCmd)

	return rootCmd
}

func reconcileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <subject>",
		Short: "Check a subject's balance against its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result dto.ReconciliationResponse
			if err := getJSON(opts, "/api/v1/subjects/"+url.PathEscape(args[0])+"/reconcile", &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				printJSON(out, result)
			} else {
				state := "PASSED"
				if !result.IsReconciled {
					state = "FAILED"
				}
				fmt.Fprintf(out, "Reconciliation %s for %s\n", state, result.SubjectID)
				fmt.Fprintf(out, "Recorded:   %d\n", result.RecordedQuantity)
				fmt.Fprintf(out, "Calculated: %d\n", result.CalculatedQuantity)
				fmt.Fprintf(out, "Journal:    %d\n", result.JournalQuantity)
				fmt.Fprintf(out, "Entries:    %d\n", result.EntriesCounted)
			}

			if !result.IsReconciled {
				return errNotReconciled
			}
			return nil
		},
	}
}

func balanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <subject>",
		Short: "Show a subject's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var balance dto.BalanceResponse
			if err := getJSON(opts, "/api/v1/subjects/"+url.PathEscape(args[0])+"/balance", &balance); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				printJSON(out, balance)
				return nil
			}
			fmt.Fprintf(out, "%s\t%s\t%d\n", balance.SubjectID, balance.ContainerID, balance.Quantity)
			return nil
		},
	}
}

func entriesCmd(opts *options) *cobra.Command {
	var (
		size           int
		includeDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "entries <subject>",
		Short: "List a subject's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			query.Set("size", fmt.Sprint(size))
			if includeDeleted {
				query.Set("includeDeleted", "true")
			}

			var page dto.PageResponse[*dto.EntryResponse]
			path := "/api/v1/subjects/" + url.PathEscape(args[0]) + "/entries?" + query.Encode()
			if err := getJSON(opts, path, &page); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				printJSON(out, page)
				return nil
			}
			for _, e := range page.Content {
				deleted := ""
				if e.Deleted {
					deleted = " (retracted)"
				}
				fmt.Fprintf(out, "%s\t%-12s\t%6d\t%s%s\n", e.ID, e.Kind, e.Delta, truncate(e.Reason, 32), deleted)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 20, "Page size")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "Include retracted entries")
	return cmd
}

func getJSON(opts *options, path string, into any) error {
	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Get(opts.baseURL + path)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("request failed (status %d): %s: %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
