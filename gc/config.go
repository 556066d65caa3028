package gc

import (
	"io"
	"log/slog"
	"os"
	"strconv"
)

// Default tuning values. They mirror the scale of a small interpreter heap:
// the first collection happens after a few megabytes and the trigger then
// tracks twice the surviving volume.
const (
	DefaultTriggerBytes = 4 << 20
	DefaultGrowthFactor = 2.0
)

// Config controls a Heap. The zero value is not usable; start from
// DefaultConfig or ConfigFromEnv.
type Config struct {
	// TriggerBytes is the initial (and minimum) outstanding-byte count above
	// which an allocation runs a full collection.
	TriggerBytes uintptr
	// GrowthFactor scales the bytes still in use after a collection to get
	// the next trigger level.
	GrowthFactor float64
	// MemoryLimit caps the bytes the memory bank will hand out; 0 means no cap.
	MemoryLimit uintptr
	// Torture collects at every allocation where collection is permitted.
	Torture bool
	// WatchID, when non-zero, logs every count change, moribund transition and
	// deletion of the node with that id.
	WatchID uint64

	Logger *slog.Logger
	// OnFatal receives fatal errors. The default panics with the error.
	OnFatal func(*FatalError)
}

// DefaultConfig returns the standard configuration with a silent logger.
func DefaultConfig() Config {
	return Config{
		TriggerBytes: DefaultTriggerBytes,
		GrowthFactor: DefaultGrowthFactor,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ConfigFromEnv starts from DefaultConfig and applies RHO_GC_TRIGGER,
// RHO_GC_LIMIT (bytes), RHO_GC_TORTURE (bool) and RHO_GC_WATCH (node id).
// Malformed values are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, ok := envUint("RHO_GC_TRIGGER"); ok && v > 0 {
		cfg.TriggerBytes = uintptr(v)
	}
	if v, ok := envUint("RHO_GC_LIMIT"); ok {
		cfg.MemoryLimit = uintptr(v)
	}
	if s := os.Getenv("RHO_GC_TORTURE"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			cfg.Torture = b
		}
	}
	if v, ok := envUint("RHO_GC_WATCH"); ok {
		cfg.WatchID = v
	}
	return cfg
}

func envUint(name string) (uint64, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Config) normalize() {
	if c.TriggerBytes == 0 {
		c.TriggerBytes = DefaultTriggerBytes
	}
	if c.GrowthFactor < 1 {
		c.GrowthFactor = DefaultGrowthFactor
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}
