package models

// MConfig Structure
type MConfig struct {
	Name      string            `yaml:"name"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	LogLevel  string            `yaml:"log_level"`
	Storage   MStorageConfig    `yaml:"storage"`
	Proxy     MProxyConfig      `yaml:"proxy"`
	Realtime  MRealtimeConfig   `yaml:"realtime"`
	Providers []MProviderConfig `yaml:"providers"`
	Widgets   []MWidgetConfig   `yaml:"widgets"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

// MProxyConfig controls the upstream REST forwarder.
type MProxyConfig struct {
	RequestTimeout     int   `yaml:"timeout"`
	MaxBodyBytes       int64 `yaml:"max_body_bytes"`
	RateLimitPerMinute int   `yaml:"rate_limit_per_minute"`
}

// MRealtimeConfig controls socket lifecycle and aggregation.
type MRealtimeConfig struct {
	ConnectTimeoutSeconds     int `yaml:"connect_timeout_seconds"`
	InitialReconnectDelaySecs int `yaml:"initial_reconnect_delay_seconds"`
	MinReconnectDelaySecs     int `yaml:"min_reconnect_delay_seconds"`
	MaxReconnectDelaySecs     int `yaml:"max_reconnect_delay_seconds"`
	MaxReconnectAttempts      int `yaml:"max_reconnect_attempts"`
	RateLimitCooldownSecs     int `yaml:"rate_limit_cooldown_seconds"`
	SettleDelayMs             int `yaml:"settle_delay_ms"`
	BarRingCapacity           int `yaml:"bar_ring_capacity"`
}

// MProviderConfig identifies one upstream realtime vendor.
// Token may be left empty in YAML and injected from the environment
// (FINBOARD_<NAME>_TOKEN) at load time.
type MProviderConfig struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// MWidgetConfig describes one dashboard widget's data binding.
type MWidgetConfig struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title"`
	Provider       string   `yaml:"provider"`
	Symbol         string   `yaml:"symbol"`
	Symbols        []string `yaml:"symbols"`
	SourceURL      string   `yaml:"source_url"`
	SelectedFields []string `yaml:"selected_fields"`
}
