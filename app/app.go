package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/fees"
	"Gin_postgres_redis_lending/inventory"
	"Gin_postgres_redis_lending/lock"
	"Gin_postgres_redis_lending/notify"
	"Gin_postgres_redis_lending/sweep"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Short aliases for handlers.
type Ctx = gin.Context
type H = gin.H

// App aggregates the wired dependencies.
type App struct {
	Router  *gin.Engine
	DB      *gorm.DB
	RDB     *redis.Client
	Config  Config
	Log     *slog.Logger
	Policy  config.Values
	Repo    *db.Repo
	Machine *inventory.Machine
	Sweeper *sweep.Sweeper

	shutdownTracing func(context.Context) error
}

// Config is read from the environment.
type Config struct {
	DSN           string
	RedisAddr     string
	RedisPwd      string
	WebOrigin     string
	Port          string
	LockTTL       time.Duration
	LockWait      time.Duration
	RatePerSecond float64
	RateBurst     int
	SweepInterval time.Duration
	OTLPEndpoint  string
	FeePolicyFile string
}

func LoadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	seconds := func(k string, def time.Duration) time.Duration {
		n, err := strconv.Atoi(get(k, ""))
		if err != nil || n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}
	rps, err := strconv.ParseFloat(get("RATE_LIMIT_PER_SECOND", "20"), 64)
	if err != nil {
		rps = 20
	}
	burst, err := strconv.Atoi(get("RATE_LIMIT_BURST", "40"))
	if err != nil {
		burst = 40
	}
	interval, err := time.ParseDuration(get("SWEEP_INTERVAL", "1h"))
	if err != nil || interval <= 0 {
		interval = time.Hour
	}
	return Config{
		DSN:           get("DATABASE_URL", db.DSNFromEnv()),
		RedisAddr:     get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:      os.Getenv("REDIS_PASSWORD"),
		WebOrigin:     get("WEB_ORIGIN", "http://localhost:5173"),
		Port:          get("PORT", "3001"),
		LockTTL:       seconds("LOCK_TTL_SECONDS", 30*time.Second),
		LockWait:      seconds("LOCK_WAIT_SECONDS", 5*time.Second),
		RatePerSecond: rps,
		RateBurst:     burst,
		SweepInterval: interval,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		FeePolicyFile: os.Getenv("FEE_POLICY_FILE"),
	}
}

// LoadPolicy reads the fee policy from FEE_* variables and the optional YAML
// overlay.
func LoadPolicy(cfg Config) (config.Values, error) {
	policy := config.FromEnv()
	if cfg.FeePolicyFile != "" {
		if err := policy.MergeFile(cfg.FeePolicyFile); err != nil {
			return nil, err
		}
	}
	return policy, nil
}

func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	policy, err := LoadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	// --- DB: Postgres ---
	dbConn, err := db.Connect(cfg.DSN)
	if err != nil {
		return nil, err
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	shutdown, err := SetupTracing(ctx, cfg.OTLPEndpoint, "lending")
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	repo := db.NewRepo(dbConn)
	outbox := notify.NewRedisOutbox(rdb, log)
	notifier := notify.Multi{notify.NewLogNotifier(log), outbox}
	machine := inventory.New(repo, fees.NewCalculator(policy),
		inventory.WithLogger(log),
		inventory.WithNotifier(notifier),
		inventory.WithLocker(lock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)),
	)

	return &App{
		Router:          NewRouter(cfg, log),
		DB:              dbConn,
		RDB:             rdb,
		Config:          cfg,
		Log:             log,
		Policy:          policy,
		Repo:            repo,
		Machine:         machine,
		Sweeper:         sweep.New(repo, machine, notifier, outbox, log),
		shutdownTracing: shutdown,
	}, nil
}

// NewRouter builds the gin engine with the shared middleware stack.
func NewRouter(cfg Config, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	useCORS(r, cfg.WebOrigin)
	if cfg.RatePerSecond > 0 {
		r.Use(RateLimit(cfg.RatePerSecond, cfg.RateBurst))
	}
	return r
}

func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("tracing shutdown", slog.Any("err", err))
		}
	}
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
