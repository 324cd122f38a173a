// Package ops loads the process configuration.
package ops

import (
	stderrors "errors"
	"io/fs"
	"strings"
	"time"

	"connector/internal/binance"
	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/pkg/conn"
	"connector/pkg/exception"
	"connector/pkg/rest"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

// EnvPrefix prefixes every environment override, e.g. CONNECTOR_VENUE_API_KEY.
const EnvPrefix = "CONNECTOR"

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StorePebble   = "pebble"
	StoreRedis    = "redis"
)

// FileConfig mirrors the config file layout.
type FileConfig struct {
	Venue     VenueConfig     `mapstructure:"venue"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Candle    CandleConfig    `mapstructure:"candle"`
	Store     StoreConfig     `mapstructure:"store"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

type VenueConfig struct {
	Market     string        `mapstructure:"market"`
	APIKey     string        `mapstructure:"api_key"`
	Secret     string        `mapstructure:"secret"`
	REST       string        `mapstructure:"rest"`
	Margin     string        `mapstructure:"margin"`
	PublicWS   string        `mapstructure:"public_ws"`
	PrivateWS  string        `mapstructure:"private_ws"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxTries   uint          `mapstructure:"max_tries"`
	RecvWindow time.Duration `mapstructure:"recv_window"`
}

type StreamConfig struct {
	Symbols     []string      `mapstructure:"symbols"`
	Feeds       []string      `mapstructure:"feeds"`
	Private     bool          `mapstructure:"private"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	KeepAlive   time.Duration `mapstructure:"keep_alive"`
	// MetricsInterval is the period of the metrics log line. 0 disables it.
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

type CandleConfig struct {
	Timeframes    []string `mapstructure:"timeframes"`
	MaxCandles    int      `mapstructure:"max_candles"`
	MaxIterations int      `mapstructure:"max_iterations"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Pebble   PebbleConfig   `mapstructure:"pebble"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	BatchSize    int    `mapstructure:"batch_size"`
}

type PebbleConfig struct {
	Dir string `mapstructure:"dir"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ProfilingConfig struct {
	Address string `mapstructure:"address"`
	AppName string `mapstructure:"app_name"`
}

// Config is the resolved configuration ready for use.
type Config struct {
	Market     enum.Market
	Endpoints  binance.Endpoints
	Rest       rest.Option
	Symbols    []string
	Feeds      []enum.Feed
	Timeframes []model.Timeframe
	Private    bool

	IdleTimeout     time.Duration
	KeepAlive       time.Duration
	MetricsInterval time.Duration
	MaxCandles      int
	MaxIterations   int

	Store     StoreSpec
	Profiling ProfilingConfig
}

// StoreSpec is the resolved candle store selection.
type StoreSpec struct {
	Driver       string
	Postgres     conn.PostgresOption
	PostgresRows int
	PebbleDir    string
	Redis        conn.RedisOption
	RedisPrefix  string
}

// Load reads .env, the config file at path (optional) and CONNECTOR_*
// environment overrides, then resolves defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config").With("path", path)
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return resolve(fc)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := map[string]any{
		"venue.market":                  string(enum.MarketFutures),
		"venue.api_key":                 "",
		"venue.secret":                  "",
		"venue.rest":                    "",
		"venue.margin":                  "",
		"venue.public_ws":               "",
		"venue.private_ws":              "",
		"venue.timeout":                 15 * time.Second,
		"venue.max_tries":               3,
		"venue.recv_window":             5 * time.Second,
		"stream.symbols":                []string{},
		"stream.feeds":                  []string{string(enum.FeedTrade), string(enum.FeedDepth)},
		"stream.private":                false,
		"stream.idle_timeout":           time.Minute,
		"stream.keep_alive":             30 * time.Minute,
		"stream.metrics_interval":       time.Minute,
		"candle.timeframes":             []string{string(model.Timeframe1m)},
		"candle.max_candles":            binance.MaxCandles,
		"candle.max_iterations":         500,
		"store.driver":                  StoreMemory,
		"store.postgres.dsn":            "",
		"store.postgres.max_open_conns": 10,
		"store.postgres.batch_size":     500,
		"store.pebble.dir":              "data/candles",
		"store.redis.addr":              "localhost:6379",
		"store.redis.password":          "",
		"store.redis.db":                0,
		"store.redis.prefix":            "candle",
		"profiling.address":             "",
		"profiling.app_name":            "connector",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

func resolve(fc FileConfig) (Config, error) {
	market := enum.Market(strings.ToLower(fc.Venue.Market))
	if !market.IsAvailable() {
		return Config{}, errors.Wrapf(exception.ErrArgumentUnsupported, "venue market: %q", fc.Venue.Market)
	}
	if fc.Stream.Private && (fc.Venue.APIKey == "" || fc.Venue.Secret == "") {
		return Config{}, errors.Wrap(exception.ErrInvalidArgument, "private stream needs venue api_key and secret")
	}

	timeframes, err := resolveTimeframes(fc.Candle.Timeframes)
	if err != nil {
		return Config{}, err
	}
	store, err := resolveStore(fc.Store)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Market: market,
		Endpoints: binance.Endpoints{
			REST:      fc.Venue.REST,
			Margin:    fc.Venue.Margin,
			PublicWS:  fc.Venue.PublicWS,
			PrivateWS: fc.Venue.PrivateWS,
		},
		Rest: rest.Option{
			APIKey:     fc.Venue.APIKey,
			Secret:     fc.Venue.Secret,
			Timeout:    fc.Venue.Timeout,
			MaxTries:   fc.Venue.MaxTries,
			RecvWindow: fc.Venue.RecvWindow,
		},
		Symbols:         resolveSymbols(fc.Stream.Symbols),
		Feeds:           resolveFeeds(fc.Stream.Feeds, timeframes),
		Timeframes:      timeframes,
		Private:         fc.Stream.Private,
		IdleTimeout:     fc.Stream.IdleTimeout,
		KeepAlive:       fc.Stream.KeepAlive,
		MetricsInterval: fc.Stream.MetricsInterval,
		MaxCandles:      min(max(fc.Candle.MaxCandles, 1), binance.MaxCandles),
		MaxIterations:   fc.Candle.MaxIterations,
		Store:           store,
		Profiling:       fc.Profiling,
	}, nil
}

func resolveSymbols(symbols []string) []string {
	result := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}

func resolveTimeframes(raw []string) ([]model.Timeframe, error) {
	result := make([]model.Timeframe, 0, len(raw))
	for _, s := range raw {
		tf, err := model.ParseTimeframe(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		result = append(result, tf)
	}
	return result, nil
}

// resolveFeeds adds a kline feed per timeframe to the configured feeds.
func resolveFeeds(raw []string, timeframes []model.Timeframe) []enum.Feed {
	result := make([]enum.Feed, 0, len(raw)+len(timeframes))
	seen := make(map[enum.Feed]struct{})
	add := func(f enum.Feed) {
		if _, ok := seen[f]; ok || f == "" {
			return
		}
		seen[f] = struct{}{}
		result = append(result, f)
	}
	for _, s := range raw {
		add(enum.Feed(strings.TrimSpace(s)))
	}
	for _, tf := range timeframes {
		add(enum.KlineFeed(string(tf)))
	}
	return result
}

func resolveStore(cfg StoreConfig) (StoreSpec, error) {
	spec := StoreSpec{Driver: strings.ToLower(cfg.Driver)}
	switch spec.Driver {
	case StoreMemory:
	case StorePostgres:
		if cfg.Postgres.DSN == "" {
			return StoreSpec{}, errors.Wrap(exception.ErrInvalidArgument, "store.postgres.dsn is empty")
		}
		spec.Postgres = conn.PostgresOption{DSN: cfg.Postgres.DSN, MaxOpenConns: cfg.Postgres.MaxOpenConns}
		spec.PostgresRows = cfg.Postgres.BatchSize
	case StorePebble:
		if cfg.Pebble.Dir == "" {
			return StoreSpec{}, errors.Wrap(exception.ErrInvalidArgument, "store.pebble.dir is empty")
		}
		spec.PebbleDir = cfg.Pebble.Dir
	case StoreRedis:
		spec.Redis = conn.RedisOption{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		spec.RedisPrefix = cfg.Redis.Prefix
	default:
		return StoreSpec{}, errors.Wrapf(exception.ErrArgumentUnsupported, "store driver: %q", cfg.Driver)
	}
	return spec, nil
}
