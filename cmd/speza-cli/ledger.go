package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"speza/internal/core"
	"speza/internal/services"
)

type inputFlags struct {
	date     string
	kind     string
	category string
	amount   string
	note     string
}

func (f *inputFlags) register(cmd *cobra.Command, defaultDate string) {
	fs := cmd.Flags()
	fs.StringVar(&f.date, "date", defaultDate, "transaction date, YYYY-MM-DD")
	fs.StringVarP(&f.kind, "type", "t", "", "Income or Expense")
	fs.StringVarP(&f.category, "category", "c", "", "category name")
	fs.StringVarP(&f.amount, "amount", "a", "", "amount, dot as decimal separator")
	fs.StringVarP(&f.note, "note", "n", "", "free-form note")
}

func (f *inputFlags) input() services.Input {
	return services.Input{Date: f.date, Kind: f.kind, Category: f.category, Amount: f.amount, Note: f.note}
}

// overlay replaces the fields of t whose flags were set explicitly.
func (f *inputFlags) overlay(cmd *cobra.Command, t core.Transaction) services.Input {
	in := services.Input{
		Date:     t.Date,
		Kind:     t.Kind,
		Category: t.Category,
		Amount:   core.FormatAmount(t.Amount),
		Note:     t.Note,
	}
	fs := cmd.Flags()
	if fs.Changed("date") {
		in.Date = f.date
	}
	if fs.Changed("type") {
		in.Kind = f.kind
	}
	if fs.Changed("category") {
		in.Category = f.category
	}
	if fs.Changed("amount") {
		in.Amount = f.amount
	}
	if fs.Changed("note") {
		in.Note = f.note
	}
	return in
}

func parseIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidIndex, arg)
	}
	return i, nil
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List transactions with their index",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			txs, err := a.svc.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(txs) == 0 {
				fmt.Fprintln(out, "No transactions available.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tDate\tType\tCategory\tAmount\tNote")
			for i, t := range txs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, t.Date, t.Kind, t.Category, core.FormatAmount(t.Amount), t.Note)
			}
			return tw.Flush()
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var flags inputFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an income or expense",
		Example: `  speza-cli add -t Expense -c Food -a 12.50 -n lunch
  speza-cli add --date 2024-03-01 -t Income -c Salary -a 3200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.svc.Add(cmd.Context(), flags.input())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s added successfully!\n", t.Kind)
			return nil
		},
	}
	flags.register(cmd, time.Now().Format("2006-01-02"))
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var flags inputFlags
	cmd := &cobra.Command{
		Use:   "edit <index>",
		Short: "Change fields of the transaction at index",
		Long:  "Change fields of the transaction at index. Fields without a flag keep their current value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			txs, err := a.svc.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if index >= len(txs) {
				fmt.Fprintf(out, "No transaction at index %d.\n", index)
				return nil
			}
			applied, err := a.svc.EditAt(cmd.Context(), index, flags.overlay(cmd, txs[index]))
			if err != nil {
				return err
			}
			if !applied {
				fmt.Fprintf(out, "No transaction at index %d.\n", index)
				return nil
			}
			fmt.Fprintln(out, "Transaction updated successfully!")
			return nil
		},
	}
	flags.register(cmd, "")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <index>",
		Aliases: []string{"rm"},
		Short:   "Delete the transaction at index",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			applied, err := a.svc.DeleteAt(cmd.Context(), index)
			if err != nil {
				return err
			}
			if !applied {
				fmt.Fprintf(cmd.OutOrStdout(), "No transaction at index %d.\n", index)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Transaction deleted successfully!")
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the ledger without --yes")
			}
			if err := a.svc.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All transactions cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm clearing the ledger")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print totals, mood and breakdowns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.svc.Report(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if r.Empty() {
				fmt.Fprintln(out, "No transactions found. Add some income or expenses to see your report.")
				return nil
			}
			return printReport(out, r)
		},
	}
}

func printReport(w io.Writer, r core.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Transactions\t%d\n", r.Count)
	fmt.Fprintf(tw, "Total income\t%s\n", core.FormatAmount(r.TotalIncome))
	fmt.Fprintf(tw, "Total expense\t%s\n", core.FormatAmount(r.TotalExpense))
	fmt.Fprintf(tw, "Balance\t%s\n", core.FormatAmount(r.Balance))
	fmt.Fprintf(tw, "Mood\t%s\n", r.Mood.Text)

	if r.HasExpenses() {
		fmt.Fprintln(tw, "\nCategory\tExpense")
		for _, c := range r.Categories {
			fmt.Fprintf(tw, "%s\t%s\n", c.Name, core.FormatAmount(c.Amount))
		}
	}

	fmt.Fprintln(tw, "\nMonth\tIncome\tExpense")
	for _, m := range r.MonthlySeries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Label, core.FormatAmount(m.Income), core.FormatAmount(m.Expense))
	}
	return tw.Flush()
}

func (a *app) exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ledger as csv or xlsx",
		Example: `  speza-cli export > backup.csv
  speza-cli export --format xlsx -o ledger.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" && format == services.FormatXLSX {
				output = "transactions.xlsx"
			}
			if output == "" || output == "-" {
				return a.svc.Export(cmd.Context(), cmd.OutOrStdout(), format)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := a.svc.Export(cmd.Context(), f, format); err != nil {
				_ = f.Close()
				_ = os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", services.FormatCSV, "csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (xlsx defaults to transactions.xlsx)")
	return cmd
}
