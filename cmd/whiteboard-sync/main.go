package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Meet1306/Whiteboard/internal/activity"
	"github.com/Meet1306/Whiteboard/internal/auth"
	"github.com/Meet1306/Whiteboard/internal/boards"
	"github.com/Meet1306/Whiteboard/internal/config"
	"github.com/Meet1306/Whiteboard/internal/database"
	"github.com/Meet1306/Whiteboard/internal/logging"
	"github.com/Meet1306/Whiteboard/internal/metrics"
	"github.com/Meet1306/Whiteboard/internal/realtime"
	"github.com/Meet1306/Whiteboard/internal/relay"
	"github.com/Meet1306/Whiteboard/internal/server"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	mongoConnectTimeout = 10 * time.Second
	shutdownTimeout     = 10 * time.Second
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "whiteboard-sync",
		Short: "Collaborative whiteboard realtime sync server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated list of allowed origins")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Storage driver (sqlite, mysql, mongo)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "MySQL DSN")
	cmd.PersistentFlags().String("mongo-uri", "", "MongoDB connection URI")
	cmd.PersistentFlags().String("redis-address", "", "Redis address for cross-instance fan-out")
	cmd.PersistentFlags().String("kafka-brokers", "", "Comma separated Kafka brokers for the activity stream")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Issued token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Credential signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "mongo.uri", "mongo-uri")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "kafka.brokers", "kafka-brokers")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newIssueTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token <email>",
		Short: "Mint a credential token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.TokenIssuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueToken(auth.Identity{Email: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

// openStore returns the configured board store and a function releasing its connection.
func openStore(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (boards.Store, func(), error) {
	switch appConfig.DatabaseDriver {
	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, appConfig.MongoURI, mongoConnectTimeout)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}
		store, err := boards.NewMongoStore(ctx, client.Database(appConfig.MongoDatabase), logger)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil
	default:
		openDB := database.OpenSQLite
		source := appConfig.DatabasePath
		if appConfig.DatabaseDriver == config.DriverMySQL {
			openDB = database.OpenMySQL
			source = appConfig.DatabaseDSN
		}
		db, err := openDB(source, logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		store, err := boards.NewGormStore(db, logger)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return store, func() { _ = sqlDB.Close() }, nil
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(signalCtx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
	})
	if err != nil {
		return err
	}

	idProvider := boards.NewUUIDProvider()
	boardService, err := boards.NewService(boards.ServiceConfig{
		Store:      store,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	ledger, err := realtime.NewCommentLedger(realtime.LedgerConfig{
		Store:      store,
		IDProvider: idProvider,
		Clock:      time.Now,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewCollectors()
	if err := syncMetrics.Register(registry); err != nil {
		return err
	}

	gatewayConfig := realtime.GatewayConfig{
		Cache:       realtime.NewSnapshotCache(),
		Registry:    realtime.NewRegistry(),
		Reader:      store,
		Ledger:      ledger,
		Verifier:    verifier,
		Metrics:     syncMetrics,
		Logger:      logger,
		Clock:       time.Now,
		UpdateRate:  rate.Limit(appConfig.UpdateRatePerSecond),
		UpdateBurst: appConfig.UpdateBurst,
	}

	var boardRelay *relay.Relay
	if appConfig.RelayEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     appConfig.RedisAddress,
			Password: appConfig.RedisPassword,
		})
		defer redisClient.Close()
		boardRelay, err = relay.New(relay.Config{
			Client:        redisClient,
			ChannelPrefix: appConfig.RedisChannelPrefix,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		gatewayConfig.Fanout = boardRelay
	}

	if appConfig.ActivityEnabled() {
		producer, err := activity.NewSyncProducer(appConfig.KafkaBrokers)
		if err != nil {
			return err
		}
		dispatcher, err := activity.NewDispatcher(activity.DispatcherConfig{
			Producer:  producer,
			Topic:     appConfig.KafkaTopic,
			QueueSize: appConfig.KafkaQueueSize,
			Workers:   appConfig.KafkaWorkers,
			MaxRetry:  appConfig.KafkaMaxRetry,
			Logger:    logger,
		})
		if err != nil {
			_ = producer.Close()
			return err
		}
		defer func() {
			dispatcher.Close()
			_ = producer.Close()
		}()
		gatewayConfig.Activity = dispatcher
	}

	gateway, err := realtime.NewGateway(gatewayConfig)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Gateway:        gateway,
		BoardService:   boardService,
		Verifier:       verifier,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AllowedOrigins: appConfig.AllowedOrigins,
		SendBuffer:     appConfig.SendBuffer,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.Bool("relay_enabled", appConfig.RelayEnabled()),
			zap.Bool("activity_enabled", appConfig.ActivityEnabled()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if boardRelay != nil {
		group.Go(func() error {
			if err := boardRelay.Run(groupCtx, gateway); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
