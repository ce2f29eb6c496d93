package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock guards the work-order number counter and the audit dispatcher.
func GetRedisLock() *redislock.Client {
	return locker
}

func init() {
	godotenv.Load()
}

// RedisOptionsFromEnv reads REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB and REDIS_POOL_SIZE.
func RedisOptionsFromEnv() *redis.Options {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if addr == "" {
		addr = "localhost:6379"
	}
	return &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intFromEnv("REDIS_DB", 0),
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 20),
	}
}

// ConnectRedisWithRetry blocks until Redis answers a PING, then sets the
// global client and lock client. main calls it after the database is up.
func ConnectRedisWithRetry() {
	opts := RedisOptionsFromEnv()
	for attempt := 1; ; attempt++ {
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			logg.WithFields(logrus.Fields{"field": "redis", "attempt": attempt, "addr": opts.Addr}).Info("connected to redis")
			return
		}
		_ = client.Close()
		wait := retryDelay(attempt)
		logg.WithFields(logrus.Fields{"field": "redis", "attempt": attempt, "addr": opts.Addr}).
			Warnf("failed to connect redis: %v; retrying in %s", err, wait)
		time.Sleep(wait)
	}
}
