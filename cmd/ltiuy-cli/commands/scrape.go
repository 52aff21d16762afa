package commands

import (
	"fmt"
	"os"
	"time"

	"ltiuy-backend/lib/configutil"
	"ltiuy-backend/lib/scrapers/utec"
	"ltiuy-backend/lib/serviceutil"
	"ltiuy-backend/lib/sqliteutil"
	"ltiuy-backend/services/progress"
	"ltiuy-backend/services/progress/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var (
	scrapeDb      *string
	scrapeHeadful *bool
)

func init() {
	scrapeDb = scrapeCmd.Flags().String("db", "", "Write the merged snapshot into this database as well.")
	scrapeHeadful = scrapeCmd.Flags().Bool("headful", false, "Show the browser window while scraping.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--db <path/to/output.db>] [--headful]",
	Short: "Scrapes academic progress for the credentials in config.json5 and prints the result.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		scraperCfg := utec.DefaultConfig()
		scraperCfg.Browser.Headful = *scrapeHeadful
		scraper := utec.NewProgressScraper(scraperCfg)

		t1 := time.Now()
		var report progress.Report
		if *scrapeDb != "" {
			out, err := sqliteutil.OpenDB(db.Schema, *scrapeDb)
			if err != nil {
				serviceutil.Fatal("failed to open db", err)
			}
			defer out.Close()

			svc := progress.NewService(out, scraper, progress.DefaultOptions())
			report, err = svc.RunScrapeCycle(cmd.Context(), utec.Credential{
				Username: cfg.Username,
				Password: cfg.Password,
			}, true)
			if err != nil {
				serviceutil.Fatal("scrape failed", err)
			}
		} else {
			subjects, err := scraper.Scrape(cmd.Context(), utec.Credential{
				Username: cfg.Username,
				Password: cfg.Password,
			})
			if err != nil {
				serviceutil.Fatal("scrape failed", err)
			}
			merged := progress.MergeSubjects(nil, subjects)
			report = progress.Report{
				Subjects:      merged.Subjects,
				TotalCredits:  merged.TotalCredits,
				EarnedCredits: merged.EarnedCredits,
			}
		}
		elapsed := time.Since(t1)

		printReport(report)
		fmt.Printf("\nscraping time: %.1fs\n", elapsed.Seconds())
	},
}

func printReport(report progress.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Materia", "Créditos", "Tipo", "Convocatoria", "Nota", "Aprobada"})
	for _, s := range report.Subjects {
		passed := ""
		if s.Passed {
			passed = "sí"
		}
		t.AppendRow(table.Row{s.Name, s.Credits, s.Type, s.Convocatoria, s.Grade, passed})
	}
	t.AppendFooter(table.Row{"TOTAL", report.TotalCredits, "", "", "obtenidos", report.EarnedCredits})
	t.Render()
}
