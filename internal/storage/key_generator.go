package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidKey = errors.New("invalid dump key")

// KeyStrategy selects how dump keys are disambiguated.
type KeyStrategy string

const (
	// StrategyBasic uses the timestamp alone.
	StrategyBasic KeyStrategy = "basic"
	// StrategySequence appends a five digit counter.
	StrategySequence KeyStrategy = "sequence"
	// StrategyUUID appends the first eight characters of a random UUID.
	StrategyUUID KeyStrategy = "uuid"
)

type KeyGeneratorConfig struct {
	Strategy KeyStrategy
	Prefix   string
	Stream   string
}

// KeyGenerator builds Redis keys for frame dumps:
//
//	{stream}:{prefix}:{source}:{unix_nano}[:{suffix}]
//
// source is normally the frame buffer pool ID.
type KeyGenerator struct {
	config   KeyGeneratorConfig
	sequence uint64
	mu       sync.Mutex
}

func NewKeyGenerator(config KeyGeneratorConfig) *KeyGenerator {
	if config.Strategy == "" {
		config.Strategy = StrategySequence
	}
	if config.Stream == "" {
		config.Stream = "default"
	}
	return &KeyGenerator{config: config}
}

func (kg *KeyGenerator) GenerateKey(source string, timestamp time.Time) string {
	baseKey := fmt.Sprintf("%s:%s:%s:%d",
		kg.config.Stream,
		kg.config.Prefix,
		source,
		timestamp.UnixNano(),
	)

	switch kg.config.Strategy {
	case StrategySequence:
		return fmt.Sprintf("%s:%05d", baseKey, kg.nextSequence())
	case StrategyUUID:
		return fmt.Sprintf("%s:%s", baseKey, uuid.NewString()[:8])
	default:
		return baseKey
	}
}

type KeyComponents struct {
	Stream    string
	Prefix    string
	Source    string
	Timestamp time.Time
	Suffix    string
}

func (kg *KeyGenerator) ParseKey(key string) (*KeyComponents, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 && len(parts) != 5 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	unixNano, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidKey, parts[3], err)
	}

	kc := &KeyComponents{
		Stream:    parts[0],
		Prefix:    parts[1],
		Source:    parts[2],
		Timestamp: time.Unix(0, unixNano),
	}
	if len(parts) == 5 {
		kc.Suffix = parts[4]
	}
	return kc, nil
}

// QueryPattern returns a SCAN/KEYS pattern. Empty source matches every source
// of the stream; empty stream uses the configured one.
func (kg *KeyGenerator) QueryPattern(source, stream string) string {
	if stream == "" {
		stream = kg.config.Stream
	}
	if source == "" {
		return fmt.Sprintf("%s:%s:*", stream, kg.config.Prefix)
	}
	return fmt.Sprintf("%s:%s:%s:*", stream, kg.config.Prefix, source)
}

// nextSequence wraps after 99999 to keep the suffix five digits wide.
func (kg *KeyGenerator) nextSequence() uint64 {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	kg.sequence++
	if kg.sequence > 99999 {
		kg.sequence = 1
	}
	return kg.sequence
}

func (kg *KeyGenerator) Config() KeyGeneratorConfig {
	return kg.config
}
