package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Calculate and store system metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		d, err := openDeps(ctx, "")
		if err != nil {
			return err
		}
		defer d.Close()

		m, err := d.metrics.CalculateAndStore(ctx)
		if err != nil {
			return err
		}

		fmt.Println("=== System Metrics ===")
		fmt.Printf("Total bills:      %d\n", m.TotalBills)
		years := make([]string, 0, len(m.BillsByYear))
		for year := range m.BillsByYear {
			years = append(years, year)
		}
		sort.Strings(years)
		for _, year := range years {
			fmt.Printf("  20%s session:   %d\n", year, m.BillsByYear[year])
		}
		fmt.Printf("Total users:      %d\n", m.TotalUsers)
		fmt.Printf("Tracked bills:    %d\n", m.TotalTracking)
		if m.MostTracked != "" {
			fmt.Printf("Most tracked:     %s (%d users)\n", m.MostTracked, m.MostTrackedUsers)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
