package dump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/T3-Labs/edge-av1/internal/storage"
	"github.com/T3-Labs/edge-av1/pkg/circuit"
	"github.com/T3-Labs/edge-av1/pkg/config"
	"github.com/T3-Labs/edge-av1/pkg/frame"
	"github.com/T3-Labs/edge-av1/pkg/logger"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
	"github.com/T3-Labs/edge-av1/pkg/mq"
	"github.com/T3-Labs/edge-av1/pkg/util"
)

const (
	sinkFile  = "file"
	sinkRedis = "redis"
	sinkAMQP  = "amqp"
	sinkMQTT  = "mqtt"
)

// PublisherSink is a broker sink. Name labels its metrics; a nil Breaker
// gets a default one named dump-{Name}.
type PublisherSink struct {
	Name      string
	Publisher mq.Publisher
	Breaker   *circuit.Breaker
}

// Options wires the sinks of a Writer. Directory empty disables the file
// sink; a nil or disabled Redis store disables the Redis sink.
type Options struct {
	Directory  string
	Every      int
	Compressor *util.Compressor
	Redis      *storage.RedisStore
	Keys       *storage.KeyGenerator
	Breaker    *circuit.Breaker
	Publishers []PublisherSink
}

// Writer persists finished frames for offline inspection.
type Writer struct {
	opts Options
	log  *zap.SugaredLogger
}

func NewWriter(opts Options) (*Writer, error) {
	if opts.Every <= 0 {
		opts.Every = 1
	}
	if opts.Directory != "" {
		if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("create dump directory: %w", err)
		}
	}
	if opts.Redis != nil && opts.Redis.Enabled() {
		if opts.Keys == nil {
			opts.Keys = storage.NewKeyGenerator(storage.KeyGeneratorConfig{Prefix: "av1"})
		}
		if opts.Breaker == nil {
			opts.Breaker = circuit.NewBreaker("dump-redis", 5, time.Minute)
		}
	}
	publishers := make([]PublisherSink, 0, len(opts.Publishers))
	for _, sink := range opts.Publishers {
		if sink.Publisher == nil {
			continue
		}
		if sink.Breaker == nil {
			sink.Breaker = circuit.NewBreaker("dump-"+sink.Name, 5, time.Minute)
		}
		publishers = append(publishers, sink)
	}
	opts.Publishers = publishers
	return &Writer{
		opts: opts,
		log:  logger.L().With("component", "dump"),
	}, nil
}

// NewWriterFromConfig builds the sinks described by the dump section.
func NewWriterFromConfig(cfg *config.Config, stream string) (*Writer, error) {
	d := cfg.Dump
	opts := Options{
		Directory: d.Directory,
		Every:     d.Every,
	}
	if d.Compression.Enabled {
		c, err := util.NewCompressor(d.Compression.Level)
		if err != nil {
			return nil, err
		}
		opts.Compressor = c
	}
	if d.Redis.Enabled {
		opts.Redis = storage.NewRedisStore(d.Redis.Address, d.Redis.TTLSeconds, true)
		opts.Keys = storage.NewKeyGenerator(storage.KeyGeneratorConfig{
			Strategy: storage.StrategySequence,
			Prefix:   d.Redis.Prefix,
			Stream:   stream,
		})
		opts.Breaker = circuit.NewBreaker("dump-redis", int64(d.Circuit.MaxFailures), cfg.CircuitResetTimeout())
	}
	if d.AMQP.Enabled {
		p, err := mq.NewAMQPPublisher(d.AMQP.URL, d.AMQP.Exchange, d.AMQP.RoutingKeyPrefix)
		if err != nil {
			return nil, err
		}
		opts.Publishers = append(opts.Publishers, PublisherSink{
			Name:      sinkAMQP,
			Publisher: p,
			Breaker:   circuit.NewBreaker("dump-amqp", int64(d.Circuit.MaxFailures), cfg.CircuitResetTimeout()),
		})
	}
	if d.MQTT.Enabled {
		p, err := mq.NewMQTTPublisher(d.MQTT.Broker, d.MQTT.ClientID, d.MQTT.TopicPrefix, d.MQTT.QoS)
		if err != nil {
			return nil, err
		}
		opts.Publishers = append(opts.Publishers, PublisherSink{
			Name:      sinkMQTT,
			Publisher: p,
			Breaker:   circuit.NewBreaker("dump-mqtt", int64(d.Circuit.MaxFailures), cfg.CircuitResetTimeout()),
		})
	}
	return NewWriter(opts)
}

// Due reports whether the frame with this sequence number is sampled.
func (w *Writer) Due(sequence int64) bool {
	return sequence%int64(w.opts.Every) == 0
}

// Dump writes the frame to every enabled sink. Sink failures are joined; a
// Redis or broker sink behind an open breaker reports circuit.ErrOpen.
func (w *Writer) Dump(ctx context.Context, source string, sequence int64, yuv *frame.YuvBuffer) error {
	if !w.Due(sequence) {
		return nil
	}

	data := Serialize(yuv)
	ext := ".yuv"
	if w.opts.Compressor != nil {
		data = w.opts.Compressor.Compress(nil, data)
		ext += ".zst"
	}
	metrics.DumpSizeBytes.Observe(float64(len(data)))

	var errs []error
	if w.opts.Directory != "" {
		name := filepath.Join(w.opts.Directory, fmt.Sprintf("%s-%06d%s", source, sequence, ext))
		err := os.WriteFile(name, data, 0o644)
		w.record(sinkFile, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("write dump file: %w", err))
		}
	}
	if w.opts.Redis != nil && w.opts.Redis.Enabled() {
		key := w.opts.Keys.GenerateKey(source, time.Now())
		err := w.opts.Breaker.Call(func() error {
			return w.opts.Redis.SaveDump(ctx, key, data)
		})
		w.record(sinkRedis, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, sink := range w.opts.Publishers {
		err := sink.Breaker.Call(func() error {
			return sink.Publisher.Publish(ctx, source, data)
		})
		w.record(sink.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		w.log.Warnw("Frame dump failed", "source", source, "sequence", sequence, "error", err)
		return err
	}
	w.log.Debugw("Frame dumped", "source", source, "sequence", sequence, "bytes", len(data))
	return nil
}

func (w *Writer) record(sink string, err error) {
	status := "ok"
	switch {
	case errors.Is(err, circuit.ErrOpen):
		status = "rejected"
	case err != nil:
		status = "error"
	}
	metrics.FramesDumped.WithLabelValues(sink, status).Inc()
}

// Load reads a dump produced by the file sink.
func Load(path string) (Header, [][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read dump: %w", err)
	}
	if filepath.Ext(path) == ".zst" {
		if data, err = util.Decompress(data); err != nil {
			return Header{}, nil, err
		}
	}
	return Parse(data)
}

func (w *Writer) Close() error {
	var errs []error
	if w.opts.Compressor != nil {
		errs = append(errs, w.opts.Compressor.Close())
	}
	if w.opts.Redis != nil {
		errs = append(errs, w.opts.Redis.Close())
	}
	for _, sink := range w.opts.Publishers {
		errs = append(errs, sink.Publisher.Close())
	}
	return errors.Join(errs...)
}
