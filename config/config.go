package config

// Config contains all application settings
type Config struct {
	BindPort      int    `mapstructure:"PORT" yaml:"port"`
	BindHost      string `mapstructure:"HOST" yaml:"host"`
	DatabaseURL   string `mapstructure:"DATABASE_URL" yaml:"database_url"`
	NATSServerURL string `mapstructure:"NATS_URL" yaml:"nats_url"`

	// Room broadcaster settings
	RoomCapacity       int `mapstructure:"ROOM_CAPACITY" yaml:"room_capacity"`
	MessageRateCeiling int `mapstructure:"MESSAGE_RATE_CEILING" yaml:"message_rate_ceiling"`
	HeartbeatInterval  int `mapstructure:"HEARTBEAT_INTERVAL" yaml:"heartbeat_interval"`

	// Backing store consistency guard settings
	StoreQuotaPerMinute    int     `mapstructure:"STORE_QUOTA_PER_MINUTE" yaml:"store_quota_per_minute"`
	StoreQuotaSafetyMargin float64 `mapstructure:"STORE_QUOTA_SAFETY_MARGIN" yaml:"store_quota_safety_margin"`
	StoreMinCallInterval   int     `mapstructure:"STORE_MIN_CALL_INTERVAL_MS" yaml:"store_min_call_interval_ms"`
	StoreCacheTTL          int     `mapstructure:"STORE_CACHE_TTL" yaml:"store_cache_ttl"`
	StoreRetryAttempts     int     `mapstructure:"STORE_RETRY_ATTEMPTS" yaml:"store_retry_attempts"`
	StoreBackoffBase       int     `mapstructure:"STORE_BACKOFF_BASE_MS" yaml:"store_backoff_base_ms"`
	StoreBackoffCap        int     `mapstructure:"STORE_BACKOFF_CAP_MS" yaml:"store_backoff_cap_ms"`

	// Session coordinator settings
	SessionVerifyAttempts int `mapstructure:"SESSION_VERIFY_ATTEMPTS" yaml:"session_verify_attempts"`

	// Version
	BuildVersion string `yaml:"-"`
	BuildHash    string `yaml:"-"`
	BuildTime    string `yaml:"-"`
}
