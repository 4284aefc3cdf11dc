package utils

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full scan configuration. It is loaded once at startup and
// treated as read-only by everything below the CLI layer.
type Config struct {
	Scan struct {
		Depth              int               `yaml:"depth"`
		MaxPages           int               `yaml:"max_pages"`
		Timeout            int               `yaml:"timeout"`
		UserAgent          string            `yaml:"user_agent"`
		ConcurrentRequests int               `yaml:"concurrent_requests"`
		Retries            int               `yaml:"retries"`
		BackoffDelay       int               `yaml:"backoff_delay"`
		RespectRobots      bool              `yaml:"respect_robots"`
		AllowedDomains     []string          `yaml:"allowed_domains"`
		FollowRedirects    bool              `yaml:"follow_redirects"`
		Proxy              string            `yaml:"proxy"`
		CustomHeaders      map[string]string `yaml:"custom_headers"`
		CustomCookies      map[string]string `yaml:"custom_cookies"`
		Auth               AuthConfig        `yaml:"auth"`
	} `yaml:"scan"`

	Cache struct {
		Enabled    bool     `yaml:"enabled"`
		TTL        int      `yaml:"ttl"`
		Backends   []string `yaml:"backends"`
		Dir        string   `yaml:"dir"`
		MaxEntries int      `yaml:"max_entries"`
		RedisURL   string   `yaml:"redis_url"`
	} `yaml:"cache"`

	RateLimit struct {
		Strategy     string `yaml:"strategy"`
		MaxRequests  int    `yaml:"max_requests"`
		Window       int    `yaml:"window"`
		MaxQueueWait int    `yaml:"max_queue_wait"`
		Base         string `yaml:"base"`
	} `yaml:"rate_limit"`

	Modules struct {
		Enabled []string `yaml:"enabled"`
		Profile string   `yaml:"profile"`
	} `yaml:"modules"`

	Execution struct {
		Mode          string `yaml:"mode"`
		Concurrency   int    `yaml:"concurrency"`
		ModuleTimeout int    `yaml:"module_timeout"`
	} `yaml:"execution"`

	Detection struct {
		// TimeDelayThreshold is the minimum latency delta, in milliseconds,
		// before a time-based probe counts as a finding.
		TimeDelayThreshold int `yaml:"time_delay_threshold"`
		BaselineSamples    int `yaml:"baseline_samples"`
		MaxProbesPerPage   int `yaml:"max_probes_per_page"`
	} `yaml:"detection"`

	JavaScript struct {
		Enable         bool   `yaml:"enable"`
		Timeout        int    `yaml:"timeout"`
		Headless       bool   `yaml:"headless"`
		UserAgent      string `yaml:"user_agent"`
		WaitFor        int    `yaml:"wait_for"`
		ViewportWidth  int    `yaml:"viewport_width"`
		ViewportHeight int    `yaml:"viewport_height"`
	} `yaml:"javascript"`

	Safety struct {
		MaxScanDuration    int      `yaml:"max_scan_duration"`
		BlacklistedIPs     []string `yaml:"blacklisted_ips"`
		WhitelistedDomains []string `yaml:"whitelisted_domains"`
	} `yaml:"safety"`

	Logging struct {
		Level    string `yaml:"level"`
		FilePath string `yaml:"file_path"`
	} `yaml:"logging"`
}

type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Type     string `yaml:"type"`
}

// LoadConfig loads configuration from a YAML file and fills in defaults.
func LoadConfig(filename string) (Config, error) {
	var config Config

	if !FileExists(filename) {
		return config, fmt.Errorf("config file %s does not exist", filename)
	}

	file, err := os.Open(filename)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, err
	}

	config.ApplyDefaults()
	return config, nil
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() Config {
	var config Config
	config.ApplyDefaults()
	return config
}

// ApplyDefaults fills zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Scan.Depth == 0 {
		c.Scan.Depth = 3
	}
	if c.Scan.MaxPages == 0 {
		c.Scan.MaxPages = 100
	}
	if c.Scan.ConcurrentRequests == 0 {
		c.Scan.ConcurrentRequests = 10
	}
	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = 30
	}
	if c.Scan.Retries == 0 {
		c.Scan.Retries = 2
	}
	if c.Scan.BackoffDelay == 0 {
		c.Scan.BackoffDelay = 500
	}
	if c.Scan.UserAgent == "" {
		c.Scan.UserAgent = "webaudit/1.0"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 300
	}
	if len(c.Cache.Backends) == 0 {
		c.Cache.Backends = []string{"memory"}
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.RateLimit.Strategy == "" {
		c.RateLimit.Strategy = "token_bucket"
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 5
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 1
	}
	if c.RateLimit.MaxQueueWait == 0 {
		c.RateLimit.MaxQueueWait = 30
	}
	if c.Execution.Mode == "" {
		c.Execution.Mode = "parallel"
	}
	if c.Execution.Concurrency == 0 {
		c.Execution.Concurrency = 4
	}
	if c.Execution.ModuleTimeout == 0 {
		c.Execution.ModuleTimeout = 300
	}
	if c.Detection.TimeDelayThreshold == 0 {
		c.Detection.TimeDelayThreshold = 3000
	}
	if c.Detection.BaselineSamples == 0 {
		c.Detection.BaselineSamples = 2
	}
	if c.Detection.MaxProbesPerPage == 0 {
		c.Detection.MaxProbesPerPage = 5
	}
	if c.JavaScript.Timeout == 0 {
		c.JavaScript.Timeout = 30
	}
	if c.JavaScript.ViewportWidth == 0 {
		c.JavaScript.ViewportWidth = 1280
	}
	if c.JavaScript.ViewportHeight == 0 {
		c.JavaScript.ViewportHeight = 800
	}
	if c.Safety.MaxScanDuration == 0 {
		c.Safety.MaxScanDuration = 3600
	}
	if c.Modules.Profile == "" && len(c.Modules.Enabled) == 0 {
		c.Modules.Profile = "full"
	}
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scan.Timeout) * time.Second
}

// ScanDeadline returns the overall scan duration bound.
func (c *Config) ScanDeadline() time.Duration {
	return time.Duration(c.Safety.MaxScanDuration) * time.Second
}
