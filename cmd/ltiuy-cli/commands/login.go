package commands

import (
	"fmt"

	"ltiuy-backend/lib/configutil"
	"ltiuy-backend/lib/scrapers/moodle"
	"ltiuy-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var loginBaseUrl *string

func init() {
	loginBaseUrl = loginCmd.Flags().String("base-url", "https://ev1.utec.edu.uy/moodle", "The Moodle instance to verify against.")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verifies the credentials in config.json5 against Moodle without a browser.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		client, err := moodle.NewClient(moodle.ClientOptions{BaseUrl: *loginBaseUrl})
		if err != nil {
			serviceutil.Fatal("failed to create moodle client", err)
		}

		ok, err := client.VerifyCredentials(cmd.Context(), cfg.Username, cfg.Password)
		if err != nil {
			serviceutil.Fatal("failed to reach moodle", err)
		}
		if !ok {
			serviceutil.Fatal("login rejected", moodle.ErrLoginFailed)
		}
		fmt.Println("login ok")
	},
}
