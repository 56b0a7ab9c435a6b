package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"partyflow/config"
	"partyflow/internal/bot"
	"partyflow/internal/services"
	"partyflow/internal/services/messenger"
	"partyflow/internal/services/payment"
	"partyflow/internal/services/sessionstore"
	"partyflow/internal/store"
	"partyflow/monitoring"
	"partyflow/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/redis/go-redis/v9"
)

const (
	reminderJobID     = "daily-reminders"
	reminderLockTTL   = time.Hour
	monitorInterval   = 30 * time.Second
	ticketHandlerName = "notify_ticket_holder"
)

// app bundles the wired components shared by the server and the CLI.
type app struct {
	cfg   *config.Config
	pb    *pocketbase.PocketBase
	redis *redis.Client

	store         *store.Store
	inventory     *services.InventoryGuard
	gateway       payment.Gateway
	checkout      *services.CheckoutService
	confirmation  *services.ConfirmationService
	sessions      *services.SessionManager
	notifications *services.NotificationService
	bus           *services.TicketEventBus
	telegram      *telegramConn
}

// telegramConn dials the bot API on first use. Dialing calls getMe, so
// doing it while wiring would make migrate and remind depend on Telegram.
type telegramConn struct {
	token string

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

func (c *telegramConn) connect() (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api != nil {
		return c.api, nil
	}
	api, err := tgbotapi.NewBotAPI(c.token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	c.api = api
	return api, nil
}

func Start() error {
	pb := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := wire(pb, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Enable migrations
	migratecmd.MustRegister(pb, pb.RootCmd, migratecmd.Config{
		Automigrate: cfg.IsDevelopment(),
	})

	pb.RootCmd.AddCommand(newRemindCommand(a))

	// Daily reminder scan
	pb.Cron().SetTimezone(cfg.Location())
	pb.Cron().MustAdd(reminderJobID, cfg.ReminderCron, func() {
		a.runReminders(ctx)
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	pb.OnServe().BindFunc(func(e *core.ServeEvent) error {
		a.startBackground(ctx)
		a.registerRoutes(e)

		log.Println("Server routes registered")
		return e.Next()
	})

	pb.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		return e.Next()
	})

	// Start server
	return pb.Start()
}

func wire(pb *pocketbase.PocketBase, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, pb: pb}

	// Redis is optional, without it every component stays in-process
	if cfg.RedisURL != "" {
		client, err := utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
	}

	a.store = store.New(pb)
	a.inventory = services.NewInventoryGuard(a.store)

	gateway, err := payment.NewGateway(payment.Config{
		Provider:            payment.Provider(cfg.PaymentProvider),
		StripeSecretKey:     cfg.StripeSecretKey,
		AppURL:              cfg.AppURL,
		Timeout:             cfg.PaymentTimeout,
		CircuitMaxRequests:  cfg.CircuitMaxRequests,
		CircuitFailureRatio: cfg.CircuitFailureRatio,
		CircuitTimeout:      cfg.CircuitTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.gateway = gateway
	a.checkout = services.NewCheckoutService(a.inventory, gateway, cfg.AppURL, cfg.Currency)

	sessionStore, err := newSessionStore(cfg, a.redis)
	if err != nil {
		return nil, err
	}
	a.sessions = services.NewSessionManager(sessionStore, a.checkout, cfg.PhoneRegion, cfg.SessionTTL)

	if cfg.TelegramToken != "" {
		a.telegram = &telegramConn{token: cfg.TelegramToken}
	}

	m, err := newMessenger(cfg, a.telegram)
	if err != nil {
		return nil, err
	}

	var runLock utils.RunLock = utils.NewLocalRunLock()
	if a.redis != nil {
		runLock = utils.NewRedisRunLock(a.redis, reminderLockTTL)
	}

	a.notifications = services.NewNotificationService(a.store, m, runLock, services.NotificationConfig{
		Workers:  cfg.NotificationWorkers,
		Rate:     cfg.NotificationRate,
		Timeout:  cfg.NotificationTimeout,
		Location: cfg.Location(),
	})

	a.bus, err = services.NewTicketEventBus(a.redis, slog.Default())
	if err != nil {
		return nil, err
	}
	if err := a.bus.OnTicketIssued(ticketHandlerName, a.notifications.NotifyTicketIssued); err != nil {
		return nil, fmt.Errorf("register ticket handler: %w", err)
	}

	a.confirmation = services.NewConfirmationService(a.store, a.inventory, gateway, a.bus)
	return a, nil
}

func newSessionStore(cfg *config.Config, redisClient *redis.Client) (sessionstore.Store, error) {
	switch cfg.SessionStore {
	case "memory":
		return sessionstore.NewMemory(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("SESSION_STORE=redis requires REDIS_URL")
		}
		return sessionstore.NewRedis(redisClient, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.SessionStore)
	}
}

func newMessenger(cfg *config.Config, telegram *telegramConn) (messenger.Messenger, error) {
	switch messenger.Driver(cfg.MessengerDriver) {
	case messenger.DriverTelegram:
		if telegram == nil {
			return nil, fmt.Errorf("MESSENGER_DRIVER=telegram requires TELEGRAM_TOKEN")
		}
		return messenger.NewTelegram(messenger.NewLazySender(func() (messenger.BotSender, error) {
			api, err := telegram.connect()
			if err != nil {
				return nil, err
			}
			return api, nil
		})), nil
	case messenger.DriverPubNub:
		client := messenger.NewPubNubClient(messenger.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
		})
		return messenger.NewPubNub(messenger.NewPubNubPublisher(client)), nil
	case messenger.DriverLog:
		return messenger.Log{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", messenger.ErrUnsupportedDriver, cfg.MessengerDriver)
	}
}

func (a *app) startBackground(ctx context.Context) {
	go func() {
		if err := a.bus.Run(ctx); err != nil {
			slog.Error("Ticket event router stopped", "error", err)
		}
	}()

	if a.telegram != nil {
		go func() {
			api, err := a.telegram.connect()
			if err != nil {
				slog.Error("Telegram bot not started", "error", err)
				return
			}
			b := bot.New(api, a.sessions, a.inventory, a.store, a.cfg.Currency)
			if err := b.Run(ctx); err != nil {
				slog.Error("Telegram bot stopped", "error", err)
			}
		}()
	}

	if a.cfg.EnableMetrics {
		go monitoring.NewMonitor(a.inventory, monitorInterval).Run(ctx)
	}
}

func (a *app) runReminders(ctx context.Context) {
	run, err := a.notifications.SendDailyReminders(ctx)
	if err != nil {
		slog.Error("Daily reminder run failed", "error", err)
		return
	}
	slog.Info("Daily reminder run completed", "day", run.Day, "events", run.Events, "sent", run.Sent, "failed", run.Failed)
}

func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			slog.Error("Failed to close ticket event router", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
