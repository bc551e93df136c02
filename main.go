package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bathanov/lingogate/internal/clock"
	"github.com/bathanov/lingogate/internal/config"
	"github.com/bathanov/lingogate/internal/gateway"
	"github.com/bathanov/lingogate/internal/handlers"
	"github.com/bathanov/lingogate/internal/ledger"
	"github.com/bathanov/lingogate/internal/middleware"
	"github.com/bathanov/lingogate/internal/notify"
	"github.com/bathanov/lingogate/internal/poller"
	"github.com/bathanov/lingogate/internal/translate"
	"github.com/bathanov/lingogate/internal/webhook"
	"github.com/bathanov/lingogate/store"
	"github.com/bathanov/lingogate/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func main() {
	_ = config.LoadEnvFile("config.env")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var ledgerStore types.LedgerStore
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	if dsn == "-" {
		log.Println("Warning: POSTGRES_DSN=-, using in-memory store; state is lost on restart")
		ledgerStore = store.NewMemoryStore()
	} else {
		pgStore, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		ledgerStore = pgStore
	}

	var prefs handlers.PrefStore
	var cache translate.Cache
	redisAddr := fmt.Sprintf("%s:%s", config.Get("REDIS_HOST", "localhost"), config.Get("REDIS_PORT", "6379"))
	rdb, err := store.NewRedisClient(redisAddr, os.Getenv("REDIS_PASSWORD"), config.GetInt("REDIS_DB", 0), "lingogate")
	if err != nil {
		log.Printf("Redis unavailable, preferences and translation cache disabled: %v", err)
	} else {
		defer rdb.Close()
		prefs = store.NewRedisPrefStore(rdb, 30*24)
		cache = store.NewRedisTranslationCache(rdb, 24)
	}

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		log.Fatal("BOT_TOKEN environment variable is required")
	}

	b, err := bot.New(botToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	gw := gateway.NewClient(os.Getenv("RONGRID_API_URL"), os.Getenv("RONGRID_API_KEY"))

	engine := ledger.NewEngine(
		ledgerStore,
		clock.Real{},
		notify.NewTelegramNotifier(b),
		gw,
		ledger.Config{
			RegistrationPolicy: ledger.ParseRegistrationPolicy(os.Getenv("REGISTRATION_POLICY")),
			RegistrationPeriod: config.GetDuration("REGISTRATION_PERIOD", 7*24*time.Hour),
			ScopeRule:          ledger.ParseScopeRule(os.Getenv("CODE_SCOPE_RULE")),
		},
	)
	log.Printf("Engine ready: registration policy %s, scope rule %s", engine.RegistrationPolicy(), engine.ScopeRule().Name())

	translator := translate.NewClient(os.Getenv("TRANSLATE_API_URL"), os.Getenv("GOOGLE_API_KEY"), cache)

	h := handlers.NewHandlers(engine, translator, prefs, os.Getenv("OWNER_PASSWORD"))

	middlewares := middleware.NewMessageAnalyzer()
	handlerChain := middlewares.AnalyzeMessageMiddleware(h.MainHandler)
	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	paymentPoller := poller.NewPoller(engine, gw, poller.Config{
		Interval: config.GetDuration("POLL_INTERVAL", time.Minute),
	})
	paymentPoller.Start()
	defer paymentPoller.Stop()

	webhookServer := webhook.NewServer(engine)
	httpServer := &http.Server{
		Addr:    ":" + config.Get("HTTP_PORT", "8080"),
		Handler: webhookServer.Handler(),
	}
	go func() {
		log.Printf("Webhook server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Webhook server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Println("Bot started. Press Ctrl+C to stop.")
	b.Start(ctx)
}
