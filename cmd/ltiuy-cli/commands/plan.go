package commands

import (
	"fmt"

	"ltiuy-backend/lib/configutil"
	"ltiuy-backend/lib/serviceutil"
	"ltiuy-backend/lib/sqliteutil"
	"ltiuy-backend/services/progress"
	"ltiuy-backend/services/progress/db"

	"github.com/spf13/cobra"
)

var planDb *string

func init() {
	planCmd.AddCommand(planImportCmd)
	planCmd.AddCommand(planListCmd)
	planDb = planCmd.PersistentFlags().String("db", "ltiuy.db", "The database holding career plans.")
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manages career plan definitions.",
}

var planImportCmd = &cobra.Command{
	Use:   "import <plan.json5>",
	Short: "Imports a career plan definition into the database.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		plan, err := configutil.ReadConfig[progress.Plan](args[0])
		if err != nil {
			serviceutil.Fatal("failed to read plan file", err)
		}

		database, err := sqliteutil.OpenDB(db.Schema, *planDb)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()

		svc := progress.NewService(database, nil, progress.DefaultOptions())
		if err := svc.ImportPlan(cmd.Context(), plan); err != nil {
			serviceutil.Fatal("failed to import plan", err)
		}
		fmt.Printf("imported %q (%d semesters)\n", plan.Name, len(plan.Semesters))
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists imported career plans.",
	Run: func(cmd *cobra.Command, args []string) {
		database, err := sqliteutil.OpenDB(db.Schema, *planDb)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()

		svc := progress.NewService(database, nil, progress.DefaultOptions())
		names, err := svc.ListPlans(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list plans", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}
