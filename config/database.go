package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// ListLimit caps unfiltered list queries.
const ListLimit = 200

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	godotenv.Load()
}

// PoolSettings sizes the sql.DB pool. Zero durations mean no limit.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DatabaseSettings is everything needed to reach the work-order database.
type DatabaseSettings struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	Pool     PoolSettings
}

// DatabaseSettingsFromEnv reads DB_* variables. Dispatchers and technicians
// hold short transactions, so the pool defaults stay small.
func DatabaseSettingsFromEnv() DatabaseSettings {
	return DatabaseSettings{
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		Name:     os.Getenv("DB_NAME"),
		Pool: PoolSettings{
			MaxOpen:     intFromEnv("DB_MAX_OPEN_CONNS", 20),
			MaxIdle:     intFromEnv("DB_MAX_IDLE_CONNS", 10),
			MaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
			MaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
		},
	}
}

// DSN builds the MySQL DSN. A host under /cloudsql/ is dialed as a unix socket.
func (s DatabaseSettings) DSN() string {
	network, address := "tcp", fmt.Sprintf("%s:%s", s.Host, s.Port)
	if strings.HasPrefix(s.Host, "/cloudsql/") {
		network, address = "unix", s.Host
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true&loc=UTC",
		s.User, s.Password, network, address, s.Name)
}

// OpenDatabase opens dialector with the pool applied and the tracing and
// audit guard plugins installed. History rows are only safe behind the
// guard, so failing to install it fails the open.
func OpenDatabase(dialector gorm.Dialector, pool PoolSettings) (*gorm.DB, error) {
	conn, err := gorm.Open(dialector, initConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle >= 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if pool.MaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)
	}

	if err := conn.Use(otelgorm.NewPlugin()); err != nil {
		logg.WithFields(logrus.Fields{"field": "database"}).Warnf("otelgorm plugin not installed: %v", err)
	}
	if err := conn.Use(NewAuditGuardPlugin()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("audit guard: %w", err)
	}
	return conn, nil
}

// ConnectDatabaseWithRetry blocks until MySQL answers, then sets the global DB.
// main calls it once the listener is up.
func ConnectDatabaseWithRetry() {
	settings := DatabaseSettingsFromEnv()
	for attempt := 1; ; attempt++ {
		conn, err := OpenDatabase(mysql.Open(settings.DSN()), settings.Pool)
		if err == nil {
			db = conn
			logg.WithFields(logrus.Fields{"field": "database", "attempt": attempt}).Info("connected to database")
			return
		}
		wait := retryDelay(attempt)
		logg.WithFields(logrus.Fields{"field": "database", "attempt": attempt}).
			Warnf("failed to connect database: %v; retrying in %s", err, wait)
		time.Sleep(wait)
	}
}

// retryDelay doubles from 2s and caps at 30s.
func retryDelay(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	wait := time.Second * time.Duration(1<<attempt)
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	return wait
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger: WriteGormLog(),
		NamingStrategy: &schema.NamingStrategy{
			SingularTable: false,
		},
	}
}

// WriteGormLog logs SQL errors to stdout, or every statement to GORM_LOG when set.
func WriteGormLog() logger.Interface {
	logFile := os.Getenv("GORM_LOG")
	if logFile == "" {
		return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		})
	}
	f, err := os.Create(logFile)
	if err != nil {
		logg.WithFields(logrus.Fields{"field": "database"}).Warnf("GORM_LOG unusable: %v", err)
		return logger.Default.LogMode(logger.Error)
	}
	return logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		LogLevel:      logger.Info,
		SlowThreshold: time.Second,
	})
}
