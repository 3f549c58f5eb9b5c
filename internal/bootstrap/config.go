package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const appName = "babelfish"

type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	GrpcPort    string `mapstructure:"GRPC_PORT"`
	IsLocalCors bool   `mapstructure:"LOCAL_CORS"`
	Debug       bool   `mapstructure:"DEBUG"`

	EnginePath           string        `mapstructure:"ENGINE_PATH"`
	EngineThreads        int           `mapstructure:"ENGINE_THREADS"`
	EngineHashMB         int           `mapstructure:"ENGINE_HASH_MB"`
	EngineMoveOverheadMs int           `mapstructure:"ENGINE_MOVE_OVERHEAD_MS"`
	EnginePoolSize       int           `mapstructure:"ENGINE_POOL_SIZE"`
	EngineStartTimeout   time.Duration `mapstructure:"ENGINE_START_TIMEOUT"`

	MultiPV          int           `mapstructure:"MULTI_PV"`
	DefaultDepth     int           `mapstructure:"DEFAULT_DEPTH"`
	MaxDepth         int           `mapstructure:"MAX_DEPTH"`
	HardTimeCeiling  time.Duration `mapstructure:"HARD_TIME_CEILING"`
	PvMaxPliesCap    int           `mapstructure:"PV_MAX_PLIES_CAP"`
	PvDecisiveCp     int           `mapstructure:"PV_DECISIVE_CP"`
	PvStopOnMate     bool          `mapstructure:"PV_STOP_ON_MATE"`
	BelowTopKPolicy  string        `mapstructure:"BELOW_TOP_K_POLICY"`
	ThresholdExcel   int           `mapstructure:"THRESHOLD_EXCELLENT"`
	ThresholdGood    int           `mapstructure:"THRESHOLD_GOOD"`
	ThresholdInacc   int           `mapstructure:"THRESHOLD_INACCURACY"`
	ThresholdMistake int           `mapstructure:"THRESHOLD_MISTAKE"`

	CacheEnabled  bool          `mapstructure:"CACHE_ENABLED"`
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`
	RedisUrl      string        `mapstructure:"REDIS_URL"`
	MongoUri      string        `mapstructure:"MONGO_URI"`
	MongoDatabase string        `mapstructure:"MONGO_DATABASE"`
}

var defaults = map[string]any{
	"SERVER_PORT":             ":8080",
	"GRPC_PORT":               ":8082",
	"LOCAL_CORS":              false,
	"DEBUG":                   false,
	"ENGINE_PATH":             "stockfish",
	"ENGINE_THREADS":          0,
	"ENGINE_HASH_MB":          0,
	"ENGINE_MOVE_OVERHEAD_MS": 10,
	"ENGINE_POOL_SIZE":        2,
	"ENGINE_START_TIMEOUT":    "10s",
	"MULTI_PV":                3,
	"DEFAULT_DEPTH":           15,
	"MAX_DEPTH":               30,
	"HARD_TIME_CEILING":       "30s",
	"PV_MAX_PLIES_CAP":        25,
	"PV_DECISIVE_CP":          2000,
	"PV_STOP_ON_MATE":         true,
	"BELOW_TOP_K_POLICY":      "reanalyze",
	"THRESHOLD_EXCELLENT":     10,
	"THRESHOLD_GOOD":          50,
	"THRESHOLD_INACCURACY":    100,
	"THRESHOLD_MISTAKE":       200,
	"CACHE_ENABLED":           false,
	"CACHE_TTL":               "24h",
	"REDIS_URL":               "",
	"MONGO_URI":               "",
	"MONGO_DATABASE":          appName,
}

// Setup loads cfgPath (a .env style file) over the defaults. When cfgPath
// does not exist the XDG config directory is searched; a missing file is not
// an error. Environment variables override both.
func Setup(cfgPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path, ok := findConfigFile(cfgPath); ok {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.applyEngineDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfigFile(cfgPath string) (string, bool) {
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			return cfgPath, true
		}
	}
	path, err := xdg.SearchConfigFile(filepath.Join(appName, "config.env"))
	if err != nil {
		return "", false
	}
	return path, true
}

// applyEngineDefaults sizes the engine the way a shared analysis host
// expects: two thirds of the cores, 64MB hash per thread up to 1GB.
func (c *Config) applyEngineDefaults() {
	if c.EngineThreads <= 0 {
		c.EngineThreads = max(1, runtime.NumCPU()*2/3)
	}
	if c.EngineHashMB <= 0 {
		c.EngineHashMB = min(1024, 64*c.EngineThreads)
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.EnginePoolSize < 1 {
		errs = append(errs, errors.New("ENGINE_POOL_SIZE must be at least 1"))
	}
	if c.MultiPV < 1 {
		errs = append(errs, errors.New("MULTI_PV must be at least 1"))
	}
	if c.DefaultDepth < 1 || c.MaxDepth < c.DefaultDepth {
		errs = append(errs, errors.New("DEFAULT_DEPTH must be in [1, MAX_DEPTH]"))
	}
	if c.HardTimeCeiling <= 0 {
		errs = append(errs, errors.New("HARD_TIME_CEILING must be positive"))
	}
	if c.PvMaxPliesCap < 1 {
		errs = append(errs, errors.New("PV_MAX_PLIES_CAP must be at least 1"))
	}
	if !(c.ThresholdExcel <= c.ThresholdGood && c.ThresholdGood <= c.ThresholdInacc && c.ThresholdInacc <= c.ThresholdMistake) {
		errs = append(errs, errors.New("quality thresholds must be non-decreasing"))
	}
	switch strings.ToLower(c.BelowTopKPolicy) {
	case "reanalyze", "unknown":
	default:
		errs = append(errs, fmt.Errorf("BELOW_TOP_K_POLICY %q is not one of reanalyze, unknown", c.BelowTopKPolicy))
	}
	if c.CacheEnabled && c.RedisUrl == "" && c.MongoUri == "" {
		errs = append(errs, errors.New("CACHE_ENABLED needs REDIS_URL or MONGO_URI"))
	}
	return errors.Join(errs...)
}
