package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"paperwing/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// One-shot trigger for the processing state machine. Deploy it behind cron
// or a scheduler; each run asks the API to advance at most one job.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Trigger.Secret == "" {
		log.Fatal().Msg("Trigger secret is not configured")
	}

	url := fmt.Sprintf("http://localhost:%d/internal/process-jobs", cfg.Port)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Building trigger request")
	}
	req.Header.Set("X-Trigger-Secret", cfg.Trigger.Secret)

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("Trigger request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Tick reported failure")
		os.Exit(1)
	}

	fmt.Println(string(body))
}
