package commands

import (
	"fmt"
	"os"

	"ltiuy-backend/lib/serviceutil"
	"ltiuy-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ltiuy-cli",
	Short: "ltiuy-cli scrapes and inspects UTEC academic progress data.",
}

func Execute() {
	telemetry.InitSlog(true)
	ctx := serviceutil.SignalContext()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
