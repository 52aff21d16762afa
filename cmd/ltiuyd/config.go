package main

import (
	"os"

	"ltiuy-backend/lib/scrapers/utec"
)

type GeminiConfig struct {
	Model  string `json:"model"`
	ApiKey string `json:"api_key"`
}

type Config struct {
	Port int `json:"port"`
	// DatabasePath opens a local sqlite file; DatabaseUrl takes
	// precedence and opens a remote libsql replica instead.
	DatabasePath string `json:"database_path"`
	DatabaseUrl  string `json:"database_url"`

	Gemini GeminiConfig `json:"gemini"`
	// Scraper overrides merge over the built-in portal defaults.
	Scraper *utec.Config `json:"scraper"`

	MoodleBaseUrl string `json:"moodle_base_url"`
	// PlanFiles are json5 career plan definitions imported at boot.
	PlanFiles []string `json:"plan_files"`
}

func (c Config) scraperConfig() utec.Config {
	if c.Scraper != nil {
		return *c.Scraper
	}
	return utec.DefaultConfig()
}

func (c Config) geminiApiKey() string {
	if c.Gemini.ApiKey != "" {
		return c.Gemini.ApiKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// adminCredentials come from the environment only; they are never part
// of the config file.
func adminCredentials() (string, string) {
	return os.Getenv("LTIUY_ADMIN_USERNAME"), os.Getenv("LTIUY_ADMIN_PASSWORD")
}
