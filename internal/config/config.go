package config

import (
	"fmt"
	"strings"

	"vectorstore-go/internal/common"

	"github.com/BurntSushi/toml"
)

type AppConfig struct {
	Database DatabaseParams `toml:"database"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseParams struct {
	RootDir    string      `toml:"root_dir"`
	MetricType string      `toml:"metric_type"`
	IndexType  string      `toml:"index_type"`
	WALFormat  string      `toml:"wal_format"`
	HnswParams *HnswParams `toml:"hnsw_params,omitempty"`
}

type HnswParams struct {
	EFConstruction int `toml:"ef_construction"`
	M              int `toml:"m"`
}

type ServerConfig struct {
	InitURLSuffix    string `toml:"init_url_suffix"`
	SummaryURLSuffix string `toml:"summary_url_suffix"`
	SearchURLSuffix  string `toml:"search_url_suffix"`
	AddURLSuffix     string `toml:"add_url_suffix"`
	MetricsURLSuffix string `toml:"metrics_url_suffix"`
	Port             uint16 `toml:"port"`
	LogLevel         string `toml:"log_level"`
}

// Default returns the configuration used for keys a config file leaves out
func Default() AppConfig {
	return AppConfig{
		Database: DatabaseParams{
			RootDir:    "data",
			MetricType: string(common.MetricTypeL2),
			IndexType:  string(common.IndexTypeFlat),
			WALFormat:  "binary",
		},
		Server: ServerConfig{
			InitURLSuffix:    "/init",
			SummaryURLSuffix: "/summary",
			SearchURLSuffix:  "/search",
			AddURLSuffix:     "/add",
			MetricsURLSuffix: "/metrics",
			Port:             8080,
			LogLevel:         "info",
		},
	}
}

// LoadConfig decodes the TOML file at path over the defaults and validates the result
func LoadConfig(path string) (*AppConfig, error) {
	config := Default()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &config, nil
}

func (c *AppConfig) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port must be set")
	}
	routes := map[string]string{
		"init_url_suffix":    c.Server.InitURLSuffix,
		"summary_url_suffix": c.Server.SummaryURLSuffix,
		"search_url_suffix":  c.Server.SearchURLSuffix,
		"add_url_suffix":     c.Server.AddURLSuffix,
		"metrics_url_suffix": c.Server.MetricsURLSuffix,
	}
	seen := make(map[string]string, len(routes))
	for key, suffix := range routes {
		if !strings.HasPrefix(suffix, "/") {
			return fmt.Errorf("server.%s must start with '/', got %q", key, suffix)
		}
		if other, ok := seen[suffix]; ok {
			return fmt.Errorf("server.%s and server.%s share the route %q", key, other, suffix)
		}
		seen[suffix] = key
	}

	if c.Database.RootDir == "" {
		return fmt.Errorf("database.root_dir must be set")
	}
	switch c.Database.WALFormat {
	case "binary", "text":
	default:
		return fmt.Errorf("database.wal_format must be binary or text, got %q", c.Database.WALFormat)
	}

	params := c.Database.StoreDefaults()
	if params.IndexType == common.IndexTypeHnsw && params.HnswParams == nil {
		return fmt.Errorf("database.hnsw_params must be set for an hnsw index")
	}
	return params.Validate()
}

// StoreDefaults returns the index settings applied to stores created without their own
func (d DatabaseParams) StoreDefaults() common.StoreParams {
	params := common.StoreParams{
		MetricType: common.MetricType(strings.ToLower(d.MetricType)),
		IndexType:  common.IndexType(strings.ToLower(d.IndexType)),
	}
	if d.HnswParams != nil {
		params.HnswParams = &common.HnswIndexOption{
			EFConstruction: d.HnswParams.EFConstruction,
			M:              d.HnswParams.M,
		}
	}
	return params
}
