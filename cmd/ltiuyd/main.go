package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"ltiuy-backend/lib/configutil"
	"ltiuy-backend/lib/scrapers/moodle"
	"ltiuy-backend/lib/scrapers/utec"
	"ltiuy-backend/lib/serviceutil"
	"ltiuy-backend/lib/sqliteutil"
	"ltiuy-backend/lib/telemetry"
	"ltiuy-backend/services/assistant"
	assistantdb "ltiuy-backend/services/assistant/db"
	"ltiuy-backend/services/loginlimit"
	loginlimitdb "ltiuy-backend/services/loginlimit/db"
	"ltiuy-backend/services/progress"
	progressdb "ltiuy-backend/services/progress/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	telemetry.InitSlog(false)
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config.json5", err)
	}
	if config.Port == 0 {
		config.Port = 8111
	}

	t, err := telemetry.SetupFromEnv(ctx, "ltiuyd")
	if err != nil {
		slog.Warn("telemetry disabled", "err", err)
	} else {
		defer t.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)
	}

	schema := progressdb.Schema + loginlimitdb.Schema + assistantdb.Schema
	database, err := openDatabase(config, schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	scraper := utec.NewProgressScraper(config.scraperConfig())
	progressService := progress.NewService(database, scraper, progress.DefaultOptions())
	progressService.StartDaemons(ctx)
	importPlans(config, progressService)

	loginlimitService := loginlimit.NewService(database, loginlimit.DefaultOptions())
	loginlimitService.StartDaemons(ctx)

	gemini := assistant.NewGeminiClient(assistant.GeminiOptions{
		Model:  config.Gemini.Model,
		ApiKey: config.geminiApiKey(),
	})
	assistantService := assistant.NewService(database, gemini, progressService)
	assistantService.StartDaemons(ctx)

	moodleBase := config.MoodleBaseUrl
	if moodleBase == "" {
		moodleBase = "https://ev1.utec.edu.uy/moodle"
	}
	moodleClient, err := moodle.NewClient(moodle.ClientOptions{BaseUrl: moodleBase})
	if err != nil {
		serviceutil.Fatal("failed to create moodle client", err)
	}

	adminUsername, adminPassword := adminCredentials()
	handlers := &api{
		progress:      progressService,
		loginlimit:    loginlimitService,
		assistant:     assistantService,
		moodle:        moodleClient,
		sessions:      newSessionStore(),
		adminUsername: adminUsername,
		adminPassword: adminPassword,
	}
	go pruneSessions(ctx, handlers.sessions)

	mux := http.NewServeMux()
	handlers.register(mux)
	go serviceutil.StartHttpServer(config.Port, mux)

	<-ctx.Done()
}

func openDatabase(config Config, schema string) (*sql.DB, error) {
	if config.DatabaseUrl != "" {
		return sqliteutil.OpenRemoteDB(schema, config.DatabaseUrl)
	}
	path := config.DatabasePath
	if path == "" {
		path = "ltiuy.db"
	}
	return sqliteutil.OpenDB(schema, path)
}

func importPlans(config Config, progressService *progress.Service) {
	for _, file := range config.PlanFiles {
		plan, err := configutil.ReadConfig[progress.Plan](file)
		if err != nil {
			slog.Warn("failed to read plan file", "file", file, "err", err)
			continue
		}
		if err := progressService.ImportPlan(context.Background(), plan); err != nil {
			slog.Warn("failed to import plan", "file", file, "err", err)
			continue
		}
		slog.Info("imported career plan", "plan", plan.Name)
	}
}

func pruneSessions(ctx context.Context, sessions *sessionStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.prune()
		}
	}
}
