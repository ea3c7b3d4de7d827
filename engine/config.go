package engine

import (
	"io"
	"reflect"

	"github.com/naoina/toml"
)

// tomlSettings mirrors the teacher's cmd/gprobe/config.go convention: TOML
// keys use the same names as the Go struct tags verbatim, with no case
// folding.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Config holds an Engine's tunables: the heap's object ceiling, a fiber
// stack capacity setting (currently not read by the engine), and how many
// ready-queue steps run between GC checks. Loaded from TOML the same way the teacher's cmd/gprobe/config.go
// loads node configuration, via github.com/naoina/toml.
type Config struct {
	// HeapObjectLimit bounds the number of live heap objects (spec.md §6's
	// "configurable byte/object ceiling"); 0 means unbounded.
	HeapObjectLimit int `toml:"heap_object_limit"`

	// FiberStackCapacity is loaded and stored but not read by the engine:
	// a new fiber's value stack is sized only by its function's NumLocals
	// and grows on demand.
	FiberStackCapacity int `toml:"fiber_stack_capacity"`

	// GCStepInterval is the number of scheduler steps between automatic
	// Collect passes; 0 disables automatic collection, and the Engine then
	// never collects (neither Engine nor Context exposes a collect call).
	GCStepInterval int `toml:"gc_step_interval"`
}

// DefaultConfig matches the spec's abstract model: no enforced ceiling, a
// small stack preallocation, and a GC pass every 256 steps.
func DefaultConfig() Config {
	return Config{
		HeapObjectLimit:    0,
		FiberStackCapacity: 64,
		GCStepInterval:     256,
	}
}

// LoadConfig reads a TOML document into Config, starting from
// DefaultConfig so an embedder's file only needs to override what it
// cares about.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := tomlSettings.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
