package app

import (
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
	"github.com/fixxdigital/myob-mcp-server/internal/redis"
)

func (app *App) initializeRedis() error {
	if app.Config.RedisAddr == "" {
		return nil
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddr,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
	})
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected", logging.Field{Key: "address", Value: app.Config.RedisAddr})
	return nil
}
