package commands

import (
	"ltiuy-backend/lib/serviceutil"
	"ltiuy-backend/lib/sqliteutil"
	"ltiuy-backend/services/progress"
	"ltiuy-backend/services/progress/db"

	"github.com/spf13/cobra"
)

var (
	showDb       *string
	showUsername *string
)

func init() {
	showDb = showCmd.Flags().String("db", "ltiuy.db", "The database to read from.")
	showUsername = showCmd.Flags().String("username", "", "The student whose snapshot to print.")
	showCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show --username <username> [--db <path>]",
	Short: "Prints the stored progress snapshot for a student without scraping.",
	Run: func(cmd *cobra.Command, args []string) {
		database, err := sqliteutil.OpenDB(db.Schema, *showDb)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()

		svc := progress.NewService(database, nil, progress.DefaultOptions())
		report, err := svc.GetProgress(cmd.Context(), progress.HashUsername(*showUsername))
		if err != nil {
			serviceutil.Fatal("failed to load snapshot", err)
		}
		printReport(report)
	},
}
