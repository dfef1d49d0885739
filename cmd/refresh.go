package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/service"
)

var (
	refreshBill     string
	refreshYear     string
	refreshAll      bool
	refreshCacheDir string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch bills from the legislature and store them",
	Long: `Refresh downloads bill pages, extracts their fields and merges them into
the database.

Examples:
  # Refresh a single bill
  billtracker refresh --bill HB73 --year 19

  # Refresh every bill in the session listing
  billtracker refresh --all --year 19

  # Refresh from saved pages instead of the website
  billtracker refresh --all --year 19 --cache-dir ./pages`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringVarP(&refreshBill, "bill", "b", "", "Bill designation(s) to refresh, e.g. HB73 or \"HB73, SB21\"")
	refreshCmd.Flags().StringVarP(&refreshYear, "year", "y", "", "Two-digit session year, e.g. 19")
	refreshCmd.Flags().BoolVar(&refreshAll, "all", false, "Refresh every bill in the session listing")
	refreshCmd.Flags().StringVar(&refreshCacheDir, "cache-dir", "", "Read pages from this directory instead of the website")
	refreshCmd.MarkFlagRequired("year")
	refreshCmd.MarkFlagsMutuallyExclusive("bill", "all")
	refreshCmd.MarkFlagsOneRequired("bill", "all")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	d, err := openDeps(ctx, refreshCacheDir)
	if err != nil {
		return err
	}
	defer d.Close()

	if refreshAll {
		if err := model.ValidateYearCode(refreshYear); err != nil {
			return err
		}
		result, err := d.refresher.RefreshListing(ctx, refreshYear)
		if err != nil {
			return err
		}
		service.PrintSummary(os.Stdout, result)
		if result.Stats.Failed > 0 {
			return fmt.Errorf("%d of %d bills failed to refresh", result.Stats.Failed, result.Stats.Total)
		}
		return nil
	}

	ids, err := model.ParseDesignationList(refreshBill, refreshYear)
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		designation, err := d.refresher.RefreshOne(ctx, id)
		if err != nil {
			slog.Error("refresh failed", "bill", id.Designation(), "year", id.Year, "err", err)
			fmt.Fprintf(os.Stdout, "FAIL %s: %v\n", id.Designation(), err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(os.Stdout, "OK Updated %s\n", designation)
	}
	return errors.Join(errs...)
}
