package cmd

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	userEmail    string
	userPassword string
	userYear     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and their tracked bills",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := userPassword
		if password == "" {
			password = os.Getenv("BILLTRACKER_PASSWORD")
		}

		ctx, stop := signalContext()
		defer stop()

		d, err := openDeps(ctx, "")
		if err != nil {
			return err
		}
		defer d.Close()

		user, err := d.tracker.Register(ctx, args[0], userEmail, password)
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s\n", user.Username)
		return nil
	},
}

var userTrackCmd = &cobra.Command{
	Use:   "track <username> <designations>",
	Short: "Track one or more comma separated bills for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		d, err := openDeps(ctx, "")
		if err != nil {
			return err
		}
		defer d.Close()

		ids, err := d.tracker.Track(ctx, args[0], args[1], userYear)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Printf("Tracking %s\n", id)
		}
		return nil
	},
}

var userDashboardCmd = &cobra.Command{
	Use:   "dashboard <username>",
	Short: "Show a user's tracked bills and mark them as checked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		d, err := openDeps(ctx, "")
		if err != nil {
			return err
		}
		defer d.Close()

		lastCheck, err := d.tracker.LastCheck(ctx, args[0])
		if err != nil {
			return err
		}

		rows, err := d.tracker.Dashboard(ctx, args[0])
		if err != nil {
			return err
		}

		if !lastCheck.Valid {
			fmt.Println("This is your first check.")
		} else {
			fmt.Printf("Last checked %s\n", lastCheck.Time.Local().Format("2006-01-02 15:04"))
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Bill", "Year", "Title", "Status", "Updated", "Activity"})
		for _, r := range rows {
			b := r.Bill
			t.AppendRow(table.Row{b.Designation(), b.ID.Year, b.Title.String, b.StatusText.String, formatNullDate(b.UpdateDate), string(r.Activity)})
		}
		t.Render()
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token <username>",
	Short: "Mint an API bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		d, err := openDeps(ctx, "")
		if err != nil {
			return err
		}
		defer d.Close()

		user, err := d.users.GetByUsername(ctx, args[0])
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("no such user: %s", args[0])
		}

		token, err := d.issuer.Issue(user.Username)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userTrackCmd, userDashboardCmd, userTokenCmd)

	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Optional email address")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Password (default $BILLTRACKER_PASSWORD)")

	userTrackCmd.Flags().StringVarP(&userYear, "year", "y", "", "Two-digit session year, e.g. 19")
	userTrackCmd.MarkFlagRequired("year")
}

func formatNullDate(t sql.NullTime) string {
	if !t.Valid {
		return "-"
	}
	return t.Time.Format("2006-01-02 15:04")
}
