package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset files. Relative paths are resolved against DataDir.
	DataDir        string
	ZonesFile      string
	ZonesFields    []string
	YearRankFile   string
	CityRiskFile   string
	CityRiskFields []string
	HazardFile     string
	EigenFile      string
	ResilienceFile string
	Preload        bool

	DashboardVariant string
	VariantsFile     string
	MaxZoneCode      int

	// Dataset refresh listener. Disabled when KafkaBrokers is empty.
	KafkaBrokers       []string
	KafkaRefreshTopic  string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

const (
	defaultZonesFields    = "Zone-ID,LReport,l_metric,loss_abs,loss_rel"
	defaultCityRiskFields = "kebele,HRF,CRF,CRI,Social Vul,Community,Absorptive,Adaptive C,Preventive,Anticipato,Transforma,recovery_s,shock_ewi_,future_pla,zones_3"
)

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	maxZoneCode, err := strconv.Atoi(sharedcfg.EnvOrDefault("MAX_ZONE_CODE", "14"))
	if err != nil || maxZoneCode < 0 {
		return nil, errors.New("invalid MAX_ZONE_CODE: must be a non-negative integer")
	}

	preload, err := parseBool("PRELOAD", true)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataDir:        dataDir,
		ZonesFile:      resolve(dataDir, sharedcfg.EnvOrDefault("ZONES_FILE", "rmetric_gdf.shp")),
		ZonesFields:    parseList(sharedcfg.EnvOrDefault("ZONES_FIELDS", defaultZonesFields)),
		YearRankFile:   resolve(dataDir, os.Getenv("YEAR_RANK_FILE")),
		CityRiskFile:   resolve(dataDir, sharedcfg.EnvOrDefault("CITY_RISK_FILE", "df_risk_merged_gdf.shp")),
		CityRiskFields: parseList(sharedcfg.EnvOrDefault("CITY_RISK_FIELDS", defaultCityRiskFields)),
		HazardFile:     resolve(dataDir, sharedcfg.EnvOrDefault("HAZARD_FILE", "streamlit_hazard_df.parquet.gzip")),
		EigenFile:      resolve(dataDir, sharedcfg.EnvOrDefault("EIGEN_FILE", "df_all_eigenvalues.parquet.gzip")),
		ResilienceFile: resolve(dataDir, sharedcfg.EnvOrDefault("RESILIENCE_FILE", "df_dim_3_merged.parquet.gzip")),
		Preload:        preload,

		DashboardVariant: sharedcfg.EnvOrDefault("DASHBOARD_VARIANT", "amhara"),
		VariantsFile:     os.Getenv("VARIANTS_FILE"),
		MaxZoneCode:      maxZoneCode,

		KafkaBrokers:       sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaRefreshTopic:  sharedcfg.EnvOrDefault("KAFKA_REFRESH_TOPIC", "dataset-published"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", defaultGroupID()),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if len(cfg.ZonesFields) == 0 {
		return nil, errors.New("ZONES_FIELDS is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// RefreshEnabled reports whether the dataset refresh listener should run.
func (c *Config) RefreshEnabled() bool { return len(c.KafkaBrokers) > 0 }

// resolve joins relative file names onto dir. Empty names stay empty so
// optional datasets remain disabled.
func resolve(dir, name string) string {
	if name == "" || filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}

// defaultGroupID gives every replica its own consumer group so each one
// sees every notice and invalidates its own cache.
func defaultGroupID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "risk-dashboard"
	}
	return "risk-dashboard-" + host
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
