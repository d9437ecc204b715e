package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"penny/internal/backend"
	"penny/internal/categorize"
	"penny/internal/config"
	"penny/internal/csvimport"
	applog "penny/internal/log"
	"penny/internal/services"
)

// openService builds the expense service from the environment. The caller
// owns the returned cleanup.
func openService(cmd *cobra.Command) (*services.ExpenseService, func() error, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	// The CLI is short-lived; it never publishes events.
	backendCfg.AMQPURL = ""

	logger := applog.FromContext(cmd.Context())
	res, err := backend.NewFactory(logger).CreateBackend(cmd.Context(), backendCfg)
	if err != nil {
		return nil, nil, err
	}
	return res.Service, res.Cleanup, nil
}

func loadRules(path string) (*categorize.RuleTable, error) {
	if path == "" {
		path = os.Getenv("RULES_FILE")
	}
	return categorize.Load(path)
}

func categorizeCmd() *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:   "categorize <vendor>...",
		Short: "Show the category each vendor name would be given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRules(rulesFile)
			if err != nil {
				return err
			}
			c := categorize.New(rules)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, vendor := range args {
				fmt.Fprintf(w, "%s\t%s\n", vendor, c.Categorize(vendor))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule table YAML (default: $RULES_FILE or built-in)")
	return cmd
}

func rulesCmd() *cobra.Command {
	var (
		rulesFile string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the categorization rules in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := loadRules(rulesFile)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rules)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "#\tTOKEN\tCATEGORY\n")
			for i, r := range rules.Rules() {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, r.Token, r.Category)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule table YAML (default: $RULES_FILE or built-in)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the table as JSON")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import expenses from a CSV file into the configured store",
		Long: `Import reads a CSV with date, amount and vendor_name columns (description
is optional) and stores every valid row. Rows that fail are reported and
do not stop the import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			svc, cleanup, err := openService(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			res, err := svc.ImportCSV(cmd.Context(), f)
			printImportResult(cmd.OutOrStdout(), res)
			if err != nil {
				if csvimport.IsFileRejected(err) {
					return fmt.Errorf("file rejected: %w", err)
				}
				return err
			}
			return nil
		},
	}
}

func printImportResult(out io.Writer, res csvimport.Result) {
	fmt.Fprintf(out, "Added: %d\nFailed: %d\n", res.Added, res.Failed)
	if len(res.Errors) > 0 {
		fmt.Fprintf(out, "Errors:\n  %s\n", strings.Join(res.Errors, "\n  "))
	}
}

func dashboardCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the aggregate view of every stored expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := openService(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			view, err := svc.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Expenses: %d\nTotal: %s\nAnomalies: %d\n\n", view.TotalExpenses, view.TotalAmount, view.AnomalyCount)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "CATEGORY\tTOTAL\tCOUNT\n")
			for _, s := range view.CategoryTotals {
				fmt.Fprintf(w, "%s\t%s\t%d\n", s.Category, s.Total, s.Count)
			}
			fmt.Fprintf(w, "\nVENDOR\tTOTAL\tCOUNT\n")
			for _, s := range view.TopVendors {
				fmt.Fprintf(w, "%s\t%s\t%d\n", s.VendorName, s.Total, s.Count)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the view as JSON")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
