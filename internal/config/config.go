package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/arancormonk/dsd-neo/internal/trunk"
)

// Config is the process configuration, populated from DSD_NEO_* environment
// variables with an optional .env file underneath and CLI overrides on top.
type Config struct {
	LogLevel string `env:"DSD_NEO_LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"DSD_NEO_HTTP_ADDR" envDefault:":8473"`

	MQTTBrokerURL string `env:"DSD_NEO_MQTT_URL"`
	MQTTClientID  string `env:"DSD_NEO_MQTT_CLIENT_ID" envDefault:"dsd-neo"`
	MQTTUsername  string `env:"DSD_NEO_MQTT_USERNAME"`
	MQTTPassword  string `env:"DSD_NEO_MQTT_PASSWORD"`
	TopicPrefix   string `env:"DSD_NEO_MQTT_TOPIC_PREFIX" envDefault:"dsd-neo"`

	DatabaseURL string `env:"DSD_NEO_DATABASE_URL"`

	CacheDir   string `env:"DSD_NEO_CACHE_DIR"`
	GroupCSV   string `env:"DSD_NEO_GROUP_CSV"`
	RigctlAddr string `env:"DSD_NEO_RIGCTL_ADDR"`

	// Control channel to park on at startup, Hz. The follower can also
	// discover one through hunting once candidates are cached.
	CCFreqHz int64 `env:"DSD_NEO_CC_FREQ_HZ"`

	// Trunking timers, seconds unless noted.
	Hangtime          float64 `env:"DSD_NEO_P25_HANGTIME" envDefault:"2.0"`
	GrantTimeout      float64 `env:"DSD_NEO_P25_GRANT_TIMEOUT" envDefault:"3.0"`
	CCGrace           float64 `env:"DSD_NEO_P25_CC_GRACE" envDefault:"5.0"`
	VCGrace           float64 `env:"DSD_NEO_P25_VC_GRACE" envDefault:"0.75"`
	MACHold           float64 `env:"DSD_NEO_P25_MAC_HOLD" envDefault:"0.75"`
	VoiceHold         float64 `env:"DSD_NEO_P25_VOICE_HOLD" envDefault:"0.75"`
	MinFollowDwell    float64 `env:"DSD_NEO_P25_MIN_FOLLOW_DWELL" envDefault:"0"`
	GrantVoiceTimeout float64 `env:"DSD_NEO_P25_GRANT_VOICE_TIMEOUT" envDefault:"0"`
	RetuneBackoff     float64 `env:"DSD_NEO_P25_RETUNE_BACKOFF" envDefault:"0"`
	ForceReleaseExtra float64 `env:"DSD_NEO_P25_FORCE_RELEASE_EXTRA" envDefault:"0"`
	ErrHoldPct        float64 `env:"DSD_NEO_P25_ERR_HOLD_PCT" envDefault:"0"`
	ErrHoldSec        float64 `env:"DSD_NEO_P25_ERR_HOLD_SEC" envDefault:"0"`
	WatchdogMS        int     `env:"DSD_NEO_WATCHDOG_MS" envDefault:"200"`

	// Feature toggles.
	PreferCCCandidates bool `env:"DSD_NEO_PREFER_CC_CANDIDATES" envDefault:"false"`
	TuneGroupCalls     bool `env:"DSD_NEO_TUNE_GROUP_CALLS" envDefault:"true"`
	TunePrivateCalls   bool `env:"DSD_NEO_TUNE_PRIVATE_CALLS" envDefault:"true"`
	TuneDataCalls      bool `env:"DSD_NEO_TUNE_DATA_CALLS" envDefault:"false"`
	TuneEncCalls       bool `env:"DSD_NEO_TUNE_ENC_CALLS" envDefault:"true"`
	AllowListMode      bool `env:"DSD_NEO_ALLOW_LIST_MODE" envDefault:"false"`
	LCWRetune          bool `env:"DSD_NEO_LCW_RETUNE" envDefault:"false"`
	SimpleSM           bool `env:"DSD_NEO_SIMPLE_SM" envDefault:"false"`
	UnmuteEnc          bool `env:"DSD_NEO_UNMUTE_ENC" envDefault:"false"`

	AffRetention   time.Duration `env:"DSD_NEO_AFF_RETENTION" envDefault:"900s"`
	PatchRetention time.Duration `env:"DSD_NEO_PATCH_RETENTION" envDefault:"600s"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile    string
	LogLevel   string
	HTTPAddr   string
	MQTTURL    string
	RigctlAddr string
	GroupCSV   string
	CacheDir   string
	CCFreqHz   int64
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.MQTTURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTURL
	}
	if overrides.RigctlAddr != "" {
		cfg.RigctlAddr = overrides.RigctlAddr
	}
	if overrides.GroupCSV != "" {
		cfg.GroupCSV = overrides.GroupCSV
	}
	if overrides.CacheDir != "" {
		cfg.CacheDir = overrides.CacheDir
	}
	if overrides.CCFreqHz != 0 {
		cfg.CCFreqHz = overrides.CCFreqHz
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = trunk.DefaultCacheDir()
	}

	return cfg, nil
}

// Validate rejects configurations the follower cannot run with.
func (c *Config) Validate() error {
	if c.MQTTBrokerURL == "" {
		return fmt.Errorf("DSD_NEO_MQTT_URL must be set (the demodulator event stream arrives over MQTT)")
	}
	return nil
}

// TrunkConfig converts the flat env surface into the follower's config,
// clamping the watchdog period into its 20-2000 ms window.
func (c *Config) TrunkConfig() trunk.Config {
	secs := func(s float64) time.Duration {
		return time.Duration(s * float64(time.Second))
	}
	wd := c.WatchdogMS
	if wd < 20 {
		wd = 20
	} else if wd > 2000 {
		wd = 2000
	}
	return trunk.Config{
		Hangtime:          secs(c.Hangtime),
		GrantTimeout:      secs(c.GrantTimeout),
		CCGrace:           secs(c.CCGrace),
		VCGrace:           secs(c.VCGrace),
		MACHold:           secs(c.MACHold),
		VoiceHold:         secs(c.VoiceHold),
		MinFollowDwell:    secs(c.MinFollowDwell),
		GrantVoiceTimeout: secs(c.GrantVoiceTimeout),
		RetuneBackoff:     secs(c.RetuneBackoff),
		ForceReleaseExtra: secs(c.ForceReleaseExtra),
		ErrHoldPct:        c.ErrHoldPct,
		ErrHold:           secs(c.ErrHoldSec),
		TickPeriod:        time.Duration(wd) * time.Millisecond,

		PreferCCCandidates: c.PreferCCCandidates,
		TuneGroupCalls:     c.TuneGroupCalls,
		TunePrivateCalls:   c.TunePrivateCalls,
		TuneDataCalls:      c.TuneDataCalls,
		TuneEncCalls:       c.TuneEncCalls,
		AllowListMode:      c.AllowListMode,
		LCWRetune:          c.LCWRetune,
		SimpleSM:           c.SimpleSM,
		UnmuteEnc:          c.UnmuteEnc,

		AffRetention:   c.AffRetention,
		PatchRetention: c.PatchRetention,

		CacheDir: c.CacheDir,
	}
}
