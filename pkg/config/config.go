package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type LogConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
}

type DecoderConfig struct {
	Threads     int `mapstructure:"threads" yaml:"threads"`
	QueueLength int `mapstructure:"queue_length" yaml:"queue_length"`
}

type PoolConfig struct {
	MaxBuffers      int `mapstructure:"max_buffers" yaml:"max_buffers"`
	Borders         int `mapstructure:"borders" yaml:"borders"`
	StrideAlignment int `mapstructure:"stride_alignment" yaml:"stride_alignment"`
	DisplayQueue    int `mapstructure:"display_queue" yaml:"display_queue"`
}

type CdefConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	RowLag       bool `mapstructure:"row_lag" yaml:"row_lag"`
	WindowWidth  int  `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int  `mapstructure:"window_height" yaml:"window_height"`
}

// StreamConfig describes the synthetic stream the runner decodes.
type StreamConfig struct {
	Width          int    `mapstructure:"width" yaml:"width"`
	Height         int    `mapstructure:"height" yaml:"height"`
	Bitdepth       int    `mapstructure:"bitdepth" yaml:"bitdepth"`
	Subsampling    string `mapstructure:"subsampling" yaml:"subsampling"`
	Frames         int    `mapstructure:"frames" yaml:"frames"`
	SuperblockSize int    `mapstructure:"superblock_size" yaml:"superblock_size"`
	Damping        int    `mapstructure:"damping" yaml:"damping"`
	YStrengths     []int  `mapstructure:"y_strengths" yaml:"y_strengths"`
	UVStrengths    []int  `mapstructure:"uv_strengths" yaml:"uv_strengths"`
	SkipPercent    int    `mapstructure:"skip_percent" yaml:"skip_percent"`
	Seed           int64  `mapstructure:"seed" yaml:"seed"`
}

// MemoryConfig throttles decoding under memory pressure. MaxMB zero sizes
// the budget from the memory the runtime holds.
type MemoryConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	MaxMB           int  `mapstructure:"max_mb" yaml:"max_mb"`
	CheckIntervalMs int  `mapstructure:"check_interval_ms" yaml:"check_interval_ms"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

type Compression struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Level   int  `mapstructure:"level" yaml:"level"`
}

type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Address    string `mapstructure:"address" yaml:"address"`
	TTLSeconds int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
	Prefix     string `mapstructure:"prefix" yaml:"prefix"`
}

// AMQPConfig publishes dumps to a topic exchange, routed by
// {routing_key_prefix}.{source}.
type AMQPConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	URL              string `mapstructure:"url" yaml:"url"`
	Exchange         string `mapstructure:"exchange" yaml:"exchange"`
	RoutingKeyPrefix string `mapstructure:"routing_key_prefix" yaml:"routing_key_prefix"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker      string `mapstructure:"broker" yaml:"broker"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	QoS         int    `mapstructure:"qos" yaml:"qos"`
}

type CircuitConfig struct {
	MaxFailures  int `mapstructure:"max_failures" yaml:"max_failures"`
	ResetSeconds int `mapstructure:"reset_seconds" yaml:"reset_seconds"`
}

type DumpConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Directory   string        `mapstructure:"directory" yaml:"directory"`
	Every       int           `mapstructure:"every" yaml:"every"`
	Compression Compression   `mapstructure:"compression" yaml:"compression"`
	Redis       RedisConfig   `mapstructure:"redis" yaml:"redis"`
	AMQP        AMQPConfig    `mapstructure:"amqp" yaml:"amqp"`
	MQTT        MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt"`
	Circuit     CircuitConfig `mapstructure:"circuit" yaml:"circuit"`
}

type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Decoder DecoderConfig `mapstructure:"decoder" yaml:"decoder"`
	Pool    PoolConfig    `mapstructure:"pool" yaml:"pool"`
	Cdef    CdefConfig    `mapstructure:"cdef" yaml:"cdef"`
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Memory  MemoryConfig  `mapstructure:"memory" yaml:"memory"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Dump    DumpConfig    `mapstructure:"dump" yaml:"dump"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("decoder.threads", 0)
	v.SetDefault("decoder.queue_length", 64)
	v.SetDefault("pool.max_buffers", 0)
	v.SetDefault("pool.borders", 32)
	v.SetDefault("pool.stride_alignment", 16)
	v.SetDefault("pool.display_queue", 4)
	v.SetDefault("cdef.enabled", true)
	v.SetDefault("stream.width", 352)
	v.SetDefault("stream.height", 288)
	v.SetDefault("stream.bitdepth", 8)
	v.SetDefault("stream.subsampling", "420")
	v.SetDefault("stream.frames", 30)
	v.SetDefault("stream.superblock_size", 64)
	v.SetDefault("stream.damping", 5)
	v.SetDefault("stream.y_strengths", []int{0, 4, 8, 12})
	v.SetDefault("stream.uv_strengths", []int{0, 2, 4, 8})
	v.SetDefault("stream.skip_percent", 25)
	v.SetDefault("stream.seed", 1)
	v.SetDefault("memory.check_interval_ms", 2000)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("dump.directory", "dumps")
	v.SetDefault("dump.every", 1)
	v.SetDefault("dump.compression.enabled", true)
	v.SetDefault("dump.compression.level", 3)
	v.SetDefault("dump.redis.ttl_seconds", 300)
	v.SetDefault("dump.redis.prefix", "av1")
	v.SetDefault("dump.amqp.exchange", "av1.dumps")
	v.SetDefault("dump.amqp.routing_key_prefix", "dump")
	v.SetDefault("dump.mqtt.client_id", "edge-av1")
	v.SetDefault("dump.mqtt.topic_prefix", "av1/dumps")
	v.SetDefault("dump.mqtt.qos", 1)
	v.SetDefault("dump.circuit.max_failures", 5)
	v.SetDefault("dump.circuit.reset_seconds", 60)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadConfig reads a YAML, TOML or JSON file (chosen by extension), fills in
// defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise surface as panics deep in the
// decoder.
func (c *Config) Validate() error {
	s := c.Stream
	switch {
	case c.Decoder.Threads < 0:
		return fmt.Errorf("decoder.threads %d: %w", c.Decoder.Threads, ErrInvalidConfig)
	case c.Pool.MaxBuffers < 0:
		return fmt.Errorf("pool.max_buffers %d: %w", c.Pool.MaxBuffers, ErrInvalidConfig)
	case c.Pool.Borders < 0 || c.Pool.Borders%2 != 0:
		return fmt.Errorf("pool.borders %d must be even: %w", c.Pool.Borders, ErrInvalidConfig)
	case c.Pool.StrideAlignment <= 0 || c.Pool.StrideAlignment&(c.Pool.StrideAlignment-1) != 0:
		return fmt.Errorf("pool.stride_alignment %d must be a power of two: %w", c.Pool.StrideAlignment, ErrInvalidConfig)
	case c.Pool.DisplayQueue <= 0:
		return fmt.Errorf("pool.display_queue %d: %w", c.Pool.DisplayQueue, ErrInvalidConfig)
	case c.Cdef.WindowWidth < 0 || c.Cdef.WindowWidth%64 != 0 || c.Cdef.WindowHeight < 0 || c.Cdef.WindowHeight%64 != 0:
		return fmt.Errorf("cdef window %dx%d must be multiples of 64: %w", c.Cdef.WindowWidth, c.Cdef.WindowHeight, ErrInvalidConfig)
	case s.Width <= 0 || s.Height <= 0 || s.Width > 65536 || s.Height > 65536:
		return fmt.Errorf("stream size %dx%d: %w", s.Width, s.Height, ErrInvalidConfig)
	case s.Bitdepth != 8 && s.Bitdepth != 10 && s.Bitdepth != 12:
		return fmt.Errorf("stream.bitdepth %d: %w", s.Bitdepth, ErrInvalidConfig)
	case s.SuperblockSize != 64 && s.SuperblockSize != 128:
		return fmt.Errorf("stream.superblock_size %d: %w", s.SuperblockSize, ErrInvalidConfig)
	case s.Damping < 3 || s.Damping > 6:
		return fmt.Errorf("stream.damping %d not in [3, 6]: %w", s.Damping, ErrInvalidConfig)
	case len(s.YStrengths) == 0 || len(s.YStrengths) > 8 || len(s.UVStrengths) != len(s.YStrengths):
		return fmt.Errorf("stream strengths need 1-8 entries for both luma and chroma: %w", ErrInvalidConfig)
	case s.SkipPercent < 0 || s.SkipPercent > 100:
		return fmt.Errorf("stream.skip_percent %d: %w", s.SkipPercent, ErrInvalidConfig)
	case c.Memory.MaxMB < 0 || c.Memory.CheckIntervalMs <= 0:
		return fmt.Errorf("memory max_mb %d check_interval_ms %d: %w", c.Memory.MaxMB, c.Memory.CheckIntervalMs, ErrInvalidConfig)
	case c.Dump.Enabled && c.Dump.Every <= 0:
		return fmt.Errorf("dump.every %d: %w", c.Dump.Every, ErrInvalidConfig)
	case c.Dump.Compression.Level < 1 || c.Dump.Compression.Level > 4:
		return fmt.Errorf("dump.compression.level %d not in [1, 4]: %w", c.Dump.Compression.Level, ErrInvalidConfig)
	case c.Dump.AMQP.Enabled && (c.Dump.AMQP.URL == "" || c.Dump.AMQP.Exchange == ""):
		return fmt.Errorf("dump.amqp needs url and exchange: %w", ErrInvalidConfig)
	case c.Dump.MQTT.Enabled && c.Dump.MQTT.Broker == "":
		return fmt.Errorf("dump.mqtt needs a broker: %w", ErrInvalidConfig)
	case c.Dump.MQTT.QoS < 0 || c.Dump.MQTT.QoS > 2:
		return fmt.Errorf("dump.mqtt.qos %d not in [0, 2]: %w", c.Dump.MQTT.QoS, ErrInvalidConfig)
	}
	if _, _, _, err := s.Format(); err != nil {
		return err
	}
	for i := range s.YStrengths {
		if err := validStrength(s.YStrengths[i]); err != nil {
			return fmt.Errorf("stream.y_strengths[%d]: %w", i, err)
		}
		if err := validStrength(s.UVStrengths[i]); err != nil {
			return fmt.Errorf("stream.uv_strengths[%d]: %w", i, err)
		}
	}
	return nil
}

// Strengths pack the primary strength in bits 2..5 and the secondary one
// (0..3) in bits 0..1, the way frame headers code them.
func validStrength(v int) error {
	if v < 0 || v > 63 {
		return fmt.Errorf("strength %d not in [0, 63]: %w", v, ErrInvalidConfig)
	}
	return nil
}

// Format decodes the subsampling string into monochrome and subsampling
// flags. Accepted values are 420, 422, 444 and 400 (monochrome).
func (s StreamConfig) Format() (monochrome bool, subsamplingX, subsamplingY int, err error) {
	switch s.Subsampling {
	case "420":
		return false, 1, 1, nil
	case "422":
		return false, 1, 0, nil
	case "444":
		return false, 0, 0, nil
	case "400":
		return true, 1, 1, nil
	}
	return false, 0, 0, fmt.Errorf("stream.subsampling %q: %w", s.Subsampling, ErrInvalidConfig)
}

func (c *Config) CircuitResetTimeout() time.Duration {
	return time.Duration(c.Dump.Circuit.ResetSeconds) * time.Second
}

func (c *Config) MemoryCheckInterval() time.Duration {
	return time.Duration(c.Memory.CheckIntervalMs) * time.Millisecond
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Dump.Redis.TTLSeconds) * time.Second
}
