package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/config"
	"vehicle-info-bot/database"
	"vehicle-info-bot/export"
	"vehicle-info-bot/handlers"
	"vehicle-info-bot/ledger"
	"vehicle-info-bot/middleware"
	"vehicle-info-bot/models"
	"vehicle-info-bot/vehicle"
)

type stores struct {
	users database.Table[models.User]
	codes database.Table[models.RedeemCode]
	close func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		client, err := database.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDB)
		return &stores{
			users: database.NewMongo[models.User](db.Collection(database.UsersCollection)),
			codes: database.NewMongo[models.RedeemCode](db.Collection(database.RedeemCodesCollection)),
			close: func() { closeMongo(client) },
		}, nil

	case config.StoreRedis:
		client, err := database.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return &stores{
			users: database.NewRedis[models.User](client, database.UsersPrefix),
			codes: database.NewRedis[models.RedeemCode](client, database.RedeemCodesPrefix),
			close: func() { closeRedis(client) },
		}, nil

	default:
		log.WithFields(log.Fields{"users": cfg.UsersFile, "codes": cfg.RedeemFile}).Info("✅ Using JSON file store")
		return &stores{
			users: database.NewJSONFile[models.User](cfg.UsersFile),
			codes: database.NewJSONFile[models.RedeemCode](cfg.RedeemFile),
			close: func() {},
		}, nil
	}
}

func closeMongo(client *mongo.Client) {
	if err := database.Disconnect(client); err != nil {
		log.WithError(err).Warn("⚠️ Failed to disconnect MongoDB")
	}
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		log.WithError(err).Warn("⚠️ Failed to close Redis")
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("⚠️ Unknown LOG_LEVEL, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func main() {
	envFile := flag.String("env-file", ".env", "path to the .env file")
	store := flag.String("store", "", "storage backend (json, mongo, redis); overrides STORE_BACKEND")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.WithField("path", *envFile).Debug("No .env file loaded")
	}
	if *store != "" {
		_ = os.Setenv("STORE_BACKEND", *store)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("❌ Invalid configuration")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("store", cfg.StoreBackend).Fatal("❌ Store connection failed")
	}
	defer st.close()

	book := ledger.New(st.users, st.codes, ledger.Options{
		InitialCredits:  cfg.InitialCredits,
		CreditsPerCheck: cfg.CreditsPerCheck,
		CodeValues:      cfg.CodeValues,
		OwnerID:         cfg.OwnerID,
	})

	bot, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.BotToken,
		Client: &http.Client{Timeout: time.Minute},
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			fields := log.Fields{}
			if c != nil && c.Sender() != nil {
				fields["user_id"] = c.Sender().ID
			}
			log.WithError(err).WithFields(fields).Error("❌ Handler error")
		},
	})
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to create bot")
	}

	var exporter handlers.Exporter
	if cfg.ExportEnabled() {
		sheets, err := export.NewSheets(ctx, cfg.CredentialsFile, cfg.SpreadsheetID)
		if err != nil {
			log.WithError(err).Warn("⚠️ Sheet export disabled")
		} else {
			exporter = sheets
		}
	}

	spam := middleware.NewAntiSpam(cfg.CommandDelay, cfg.OwnerID)
	defer spam.Stop()

	bot.Use(middleware.PrivateOnly(cfg.OwnerID))
	bot.Use(spam.Middleware)

	h := handlers.New(handlers.Deps{
		Config:      cfg,
		Ledger:      book,
		Gate:        middleware.NewGate(bot, cfg.ForceJoinChannel, cfg.ChannelLink),
		Vehicles:    vehicle.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.APITimeout),
		API:         bot,
		Exporter:    exporter,
		Spam:        spam,
		BotUsername: bot.Me.Username,
	})
	h.Register(bot)

	if err := bot.SetCommands(handlers.Commands()); err != nil {
		log.WithError(err).Warn("⚠️ Failed to register command menu")
	}

	go bot.Start()
	log.WithFields(log.Fields{
		"bot":   fmt.Sprintf("@%s", bot.Me.Username),
		"store": cfg.StoreBackend,
	}).Info("🤖 Bot is running...")

	<-ctx.Done()
	log.Info("🛑 Shutting down")
	bot.Stop()
}
