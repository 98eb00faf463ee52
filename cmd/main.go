package main

import (
	"chat-relay/internal/api"
	"chat-relay/internal/cache"
	"chat-relay/internal/chat"
	"chat-relay/internal/config"
	"chat-relay/internal/subscriber"
	"context"
	"github.com/redis/go-redis/v9"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.New()
	if err != nil {
		return err
	}

	var loggerOpts slog.HandlerOptions
	if conf.Env == config.EnvDev {
		loggerOpts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &loggerOpts)
	logger := slog.New(jsonHandler)

	registry := chat.NewRegistry(logger, chat.WithAuthorEcho(conf.EchoToAuthor))
	go registry.Run(ctx)

	var sessions cache.SessionCache = cache.NewMemorySessionCache()
	if conf.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(conf.RedisHost, conf.RedisPort)})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}()
		sessions = cache.NewRedisSessionCache(redisClient, conf.SessionTTL)

		if conf.RedisAnnouncementsChannel != "" {
			sub := subscriber.NewSubscriber(logger, redisClient, conf.RedisAnnouncementsChannel, registry, conf.AnnouncerName)
			go func() {
				if err := sub.Start(ctx); err != nil {
					logger.Error("subscriber stopped with error", "error", err)
				}
			}()
		}
	}

	server := api.NewServer(conf, registry, sessions, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	return nil
}
