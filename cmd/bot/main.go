package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lessonbot/internal/api"
	"lessonbot/internal/bot"
	"lessonbot/internal/config"
	"lessonbot/internal/database"
	"lessonbot/internal/domain"
	"lessonbot/internal/events"
	"lessonbot/internal/export"
	"lessonbot/internal/logging"
	"lessonbot/internal/metrics"
	"lessonbot/internal/models"
	"lessonbot/internal/notify"
	"lessonbot/internal/reminder"
	"lessonbot/internal/repository"
	"lessonbot/internal/service"
	"lessonbot/internal/sheets"
	"lessonbot/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	applied, err := db.RunPending(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка применения миграций")
		return err
	}
	if len(applied) > 0 {
		logger.Info().Strs("applied", applied).Msg("Миграции применены")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, stateRepo := initStateRepository(ctx, cfg, &logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug
	botWrapper := bot.NewBotWrapper(botAPI)

	eventBus := events.NewEventBus()
	subscribeAuditEvents(eventBus, &logger)
	notifier := notify.NewTelegramNotifier(botWrapper, cfg.Operators, cfg.Location(), &logger)

	dispatcher := reminder.NewDispatcher(db, notifier, eventBus, cfg.SweepInterval(), &logger)
	go dispatcher.Start(ctx)

	sheetsWorker := initSheetsSync(ctx, cfg, db, redisClient, &logger)

	bookingService := service.NewBookingService(
		db, dispatcher, eventBus, syncWorkerOrNil(sheetsWorker),
		cfg.Location(), cfg.Booking.WeeklyQuota, cfg.Booking.PaginationSize, &logger)
	userService := service.NewUserService(db, cfg.Admins, &logger)
	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	if cfg.Ops.Enabled {
		opsServer := api.NewOpsServer(cfg.Ops, db, redisClient, bookingService, &logger)
		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Ops server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = opsServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	go purgePastLoop(ctx, bookingService, &logger)

	telegramBot := bot.NewBot(botWrapper, cfg, stateRepo, bookingService, userService, exporter, &logger)

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)
	telegramBot.Stop()

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

// initStateRepository wires dialog state storage: Redis when configured,
// with an in-memory fallback behind the failover wrapper so the bot keeps
// working through Redis outages.
func initStateRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *repository.FailoverStateRepository) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	ttl := time.Duration(models.DefaultRedisTTL) * time.Second
	primary := repository.NewRedisStateRepository(redisClient, ttl)
	fallback := repository.NewMemoryStateRepository(ttl)
	return redisClient, repository.NewFailoverStateRepository(primary, fallback, logger)
}

// initSheetsSync brings up the spreadsheet mirror when Google credentials
// are configured. The mirror is optional: without it bookings live only in
// the database.
func initSheetsSync(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		logger.Info().Msg("Google Sheets mirror disabled")
		return nil
	}

	sheetsSvc, err := sheets.NewSheetsService(cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}
	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil
	}
	logger.Info().Msg("Google Sheets service initialized successfully")

	sheetsWorker := worker.NewSheetsWorker(db, sheetsSvc, redisClient, worker.DefaultRetryPolicy, logger)
	go sheetsWorker.Start(ctx)
	return sheetsWorker
}

// subscribeAuditEvents writes an audit trail of booking activity to the
// log. Handlers run synchronously on the publisher's goroutine, so they
// must not block.
func subscribeAuditEvents(bus *events.EventBus, logger *zerolog.Logger) {
	audit := func(ev *events.Event) error {
		logger.Info().
			Str("event", ev.Type).
			Str("event_id", ev.ID).
			RawJSON("payload", ev.Payload).
			Msg("Event")
		return nil
	}

	for _, eventType := range []string{
		events.EventBookingCreated,
		events.EventBookingCancelled,
		events.EventBookingMoved,
		events.EventDateClosed,
		events.EventDateOpened,
		events.EventReminderSent,
	} {
		bus.Subscribe(eventType, audit)
	}
}

// purgePastLoop drops long-past lessons once a day so the ledger does not
// grow without bound. Admins can also trigger it with /purge.
func purgePastLoop(ctx context.Context, bookings domain.BookingService, logger *zerolog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := bookings.PurgePast(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Purge of past bookings failed")
				continue
			}
			if removed > 0 {
				logger.Info().Int("removed", removed).Msg("Purged past bookings")
			}
		}
	}
}

// syncWorkerOrNil avoids handing the service a typed nil interface.
func syncWorkerOrNil(w *worker.SheetsWorker) domain.SyncWorker {
	if w == nil {
		return nil
	}
	return w
}
