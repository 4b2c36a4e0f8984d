package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format selects how every persisted artifact is serialized. Chosen once at
// startup and carried in the Config, never as process-wide state.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

type PortalConfig struct {
	BaseURL        string        `yaml:"base_url"`         // e.g. https://webgis.linz.at/MAppEnterprise
	Tenant         string        `yaml:"tenant"`           // sent as Tenant/tenant headers
	AppID          string        `yaml:"app_id"`           // used in the auth Referer
	ViewID         string        `yaml:"view_id"`          // used in the dashboard Referer
	DashboardAppID string        `yaml:"dashboard_app_id"` // appId query of the dashboard Referer
	UserAgent      string        `yaml:"user_agent"`       // portal rejects unknown agents
	AcceptLanguage string        `yaml:"accept_language"`
	Timeout        time.Duration `yaml:"timeout"` // per-request, default 60s
}

// ValuesURL builds the feature-values endpoint for a dataset with the
// configured attribute projection.
func (p PortalConfig) ValuesURL(dataset string, attributes []string) string {
	base := strings.TrimRight(p.BaseURL, "/")
	return fmt.Sprintf("%s/api/v1/featureanalyzer/datasets/%s/values?attributes=%s",
		base, dataset, strings.Join(attributes, ","))
}

func (p PortalConfig) TokenURL() string {
	return strings.TrimRight(p.BaseURL, "/") + "/api/v1/oauth2/token"
}

type AuthConfig struct {
	ClientID    string        `yaml:"client_id"`    // fixed client identifier, default "App"
	Scope       string        `yaml:"scope"`        // default "public"
	TokenPrefix string        `yaml:"token_prefix"` // soft-validated prefix, default "awse_"
	Timeout     time.Duration `yaml:"timeout"`      // token endpoint timeout, default 30s
}

type FetchConfig struct {
	MaxRetries int           `yaml:"max_retries"` // attempts per dataset, default 3
	Backoff    time.Duration `yaml:"backoff"`     // initial backoff, default 2s (then doubled)
	MaxBackoff time.Duration `yaml:"max_backoff"` // cap, default 8s
	Pause      time.Duration `yaml:"pause"`       // inter-dataset delay, default 2s
}

type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"` // empty disables the /metrics listener
}

type Config struct {
	Portal     PortalConfig  `yaml:"portal"`
	Auth       AuthConfig    `yaml:"auth"`
	Fetch      FetchConfig   `yaml:"fetch"`
	Datasets   []string      `yaml:"datasets"`
	Attributes []string      `yaml:"attributes"`
	Format     Format        `yaml:"format"`
	DataDir    string        `yaml:"data_dir"`
	Metrics    MetricsConfig `yaml:"metrics"`
}

// Default returns the baseline configuration for the Linz WebGIS portal.
func Default() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL:        "https://webgis.linz.at/MAppEnterprise",
			Tenant:         "linz_db",
			AppID:          "b20c5cbc-a2be-4890-92e5-a179e44d2daf",
			ViewID:         "8dcab3bd-ca14-40f6-8631-25a816457cfb",
			DashboardAppID: "0c86a969-5a3c-4299-b567-8229fc692cca",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
			AcceptLanguage: "en-US,en;q=0.9,de-AT;q=0.8,de;q=0.7",
			Timeout:        60 * time.Second,
		},
		Auth: AuthConfig{
			ClientID:    "App",
			Scope:       "public",
			TokenPrefix: "awse_",
			Timeout:     30 * time.Second,
		},
		Fetch: FetchConfig{
			MaxRetries: 3,
			Backoff:    2 * time.Second,
			MaxBackoff: 8 * time.Second,
			Pause:      2 * time.Second,
		},
		Datasets: []string{
			"VDNB_VKT_VERLAUF_7t_60min_V2_LINZ", // 7 day traffic data, 60min resolution
		},
		Attributes: []string{"pkw", "datum", "ID"},
		Format:     FormatJSON,
		DataDir:    "data",
	}
}

// Load reads a YAML file over the defaults. A missing path keeps defaults.
func Load(path string) (Config, error) {
	c := Default()
	if strings.TrimSpace(path) == "" {
		return c, c.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch c.Format {
	case FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("unsupported output format: %q", c.Format)
	}
	if strings.TrimSpace(c.Portal.BaseURL) == "" {
		return fmt.Errorf("portal base_url is required")
	}
	if len(c.Datasets) == 0 {
		return fmt.Errorf("no datasets configured")
	}
	if len(c.Attributes) == 0 {
		return fmt.Errorf("no attributes configured")
	}
	if c.Fetch.MaxRetries <= 0 {
		c.Fetch.MaxRetries = 3
	}
	return nil
}
