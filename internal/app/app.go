package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"music_police/internal/bot"
	"music_police/internal/config"
	"music_police/internal/dispatcher"
	"music_police/internal/handler"
	"music_police/internal/inspector"
	"music_police/internal/logger"
	"music_police/internal/storage"
)

// App is the wired service
type App struct {
	Router *gin.Engine
	Bot    *bot.Bot

	closers []func() error
}

// New builds every component from cfg. botOpts are handed to the bot.
func New(ctx context.Context, cfg *config.Config, botOpts ...bot.Option) (*App, error) {
	a := &App{}

	teams, err := a.newTeamStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Bot = bot.New(bot.Identity{
		Name:         cfg.BotName,
		IconEmoji:    cfg.BotIconEmoji,
		ClientID:     cfg.SlackClientID,
		ClientSecret: cfg.SlackClientSecret,
		Scope:        cfg.SlackOAuthScope,
		RedirectURI:  cfg.SlackRedirectURI,
	}, cfg.SlackBotToken, teams, botOpts...)

	links := inspector.New(inspector.Options{
		Selector:    cfg.TitleSelector,
		Attribute:   cfg.TitleAttribute,
		Keyword:     cfg.WatchKeyword,
		Timeout:     cfg.FetchTimeout,
		CacheTTL:    cfg.TitleCacheTTL,
		Concurrency: cfg.LinkConcurrency,
	})

	events := dispatcher.New(cfg.SlackVerificationToken, cfg.WarningText, links, a.Bot)
	a.Router = handler.NewRouter(handler.NewSlackHandler(events, a.Bot), cfg.SlackSkipRetries)

	logger.GetLogger().Info("app initialized",
		zap.String("team_store", cfg.TeamStore),
		zap.String("keyword", cfg.WatchKeyword),
		zap.Bool("skip_retries", cfg.SlackSkipRetries))
	return a, nil
}

func (a *App) newTeamStore(ctx context.Context, cfg *config.Config) (storage.TeamStore, error) {
	switch cfg.TeamStore {
	case config.TeamStoreRedis:
		cipher, err := storage.NewTokenCipherFromBase64(cfg.TokenEncryptKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create token cipher: %w", err)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		return storage.NewRedisTeamStore(client, cipher), nil

	case config.TeamStoreS3:
		cipher, err := storage.NewTokenCipherFromBase64(cfg.TokenEncryptKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create token cipher: %w", err)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return storage.NewS3TeamStore(s3.NewFromConfig(awsCfg), cfg.TokenBucketName, cipher), nil

	default:
		return storage.NewMemoryTeamStore(), nil
	}
}

// Close releases connections held by the team store
func (a *App) Close() error {
	var firstErr error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
