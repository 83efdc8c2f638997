// Command export writes the upcoming schedule to an .xlsx file without
// going through the bot. Useful for cron jobs and manual pulls.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"lessonbot/internal/config"
	"lessonbot/internal/database"
	"lessonbot/internal/export"
	"lessonbot/internal/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var from, to string
	var users bool
	flag.StringVar(&from, "from", "", "start date, YYYY-MM-DD (default today)")
	flag.StringVar(&to, "to", "", "end date, YYYY-MM-DD (default from+30d)")
	flag.BoolVar(&users, "users", false, "export the users sheet instead of the schedule")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	logger := baseLogger.With().Str("component", "export").Logger()

	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.RunPending(context.Background()); err != nil {
		return err
	}

	loc := cfg.Location()
	if from == "" {
		from = time.Now().In(loc).Format("2006-01-02")
	}
	if to == "" {
		start, err := time.ParseInLocation("2006-01-02", from, loc)
		if err != nil {
			return fmt.Errorf("invalid -from date: %w", err)
		}
		to = start.AddDate(0, 0, 30).Format("2006-01-02")
	}

	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var path string
	if users {
		path, err = exporter.ExportUsers(ctx)
	} else {
		path, err = exporter.ExportSchedule(ctx, from, to)
	}
	if err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}
