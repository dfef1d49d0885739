package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/model"
)

var billsYear string

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "List a session's bills, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := model.ValidateYearCode(billsYear); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		d, err := openDeps(ctx, "")
		if err != nil {
			return err
		}
		defer d.Close()

		bills, err := d.bills.ListByUpdateDate(ctx, billsYear)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Bill", "Title", "Status", "Updated", "Checked"})
		for i := range bills {
			b := &bills[i]
			t.AppendRow(table.Row{b.Designation(), b.Title.String, b.StatusText.String, formatNullDate(b.UpdateDate), b.ModDate.Format("2006-01-02 15:04")})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(billsCmd)
	billsCmd.Flags().StringVarP(&billsYear, "year", "y", "", "Two-digit session year, e.g. 19")
	billsCmd.MarkFlagRequired("year")
}
