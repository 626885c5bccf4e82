// Package config loads AeroCore's TOML configuration, covering both the
// engine's tunables (gc.*, ic.*, jit.*) and the ambient stack (log.*,
// metrics.*), grounded on cmd/gprobe's loadConfig/tomlSettings pattern.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"

	"github.com/aerocore/aerocore/gc"
)

// tomlSettings mirrors the teacher's convention of using Go struct field
// names verbatim as TOML keys, and turning unknown fields into errors rather
// than silently ignoring typos in a hand-edited file.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// GCConfig is the TOML-facing mirror of gc.Config; field names match the
// enumeration in the external configuration surface (heap_target_utilization
// etc. become HeapTargetUtilization in Go, HeapTargetUtilization in TOML per
// tomlSettings above).
type GCConfig struct {
	HeapTargetUtilization float64
	IncrementBudgetUS     int
	WriteBarrierType      string
	ConcurrentMode        bool
	InitialHeapSizeMB     int
	Debug                 bool
}

func (c GCConfig) toGCConfig() (gc.Config, error) {
	var bt gc.WriteBarrierType
	switch c.WriteBarrierType {
	case "", "snapshot_at_beginning":
		bt = gc.BarrierSnapshotAtBeginning
	case "incremental_update":
		bt = gc.BarrierIncrementalUpdate
	case "generational":
		bt = gc.BarrierGenerational
	case "none":
		bt = gc.BarrierNone
	default:
		return gc.Config{}, fmt.Errorf("config: unknown gc.write_barrier_type %q", c.WriteBarrierType)
	}
	cfg := gc.DefaultConfig()
	if c.HeapTargetUtilization != 0 {
		cfg.HeapTargetUtilization = c.HeapTargetUtilization
	}
	if c.IncrementBudgetUS != 0 {
		cfg.IncrementBudgetUS = c.IncrementBudgetUS
	}
	if c.InitialHeapSizeMB != 0 {
		cfg.InitialHeapSize = c.InitialHeapSizeMB * 1024 * 1024
	}
	cfg.WriteBarrierType = bt
	cfg.ConcurrentMode = c.ConcurrentMode
	cfg.Debug = c.Debug
	return cfg, nil
}

// ICConfig covers the Inline Cache Manager's external knobs.
type ICConfig struct {
	MegamorphicThreshold int
	MissThreshold        int
	MaxTrackedCallSites  int
	MegaCacheBytes       int
}

// JITConfig covers the code generator's external knobs.
type JITConfig struct {
	EnablePeepholeOptimization bool
	EnableVectorExtensions     string // "auto", "on", "off"
	TargetArch                 string // "", "riscv64", "arm64", "x86_64" -- "" means runtime.GOARCH
}

// LogConfig is part of the ambient stack, not the engine's own tunables.
type LogConfig struct {
	Level string
	Color bool
}

// MetricsConfig gates the debug HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
}

// Config is the top-level document decoded from a TOML file.
type Config struct {
	GC      GCConfig
	IC      ICConfig
	JIT     JITConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// Defaults mirrors the teacher's package-level Defaults var.
var Defaults = Config{
	GC: GCConfig{
		HeapTargetUtilization: gc.DefaultHeapUtilization,
		IncrementBudgetUS:     1000,
		WriteBarrierType:      "snapshot_at_beginning",
		ConcurrentMode:        true,
		InitialHeapSizeMB:     64,
	},
	IC: ICConfig{
		MegamorphicThreshold: 8,
		MissThreshold:        64,
		MaxTrackedCallSites:  4096,
		MegaCacheBytes:       8 * 1024 * 1024,
	},
	JIT: JITConfig{
		EnablePeepholeOptimization: true,
		EnableVectorExtensions:     "auto",
	},
	Log: LogConfig{Level: "info", Color: true},
	Metrics: MetricsConfig{
		Enabled:    false,
		ListenAddr: "127.0.0.1:6161",
	},
}

// Load reads and decodes a TOML file on top of Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return cfg, err
}

// ToGCConfig converts this document's GC section into a gc.Config.
func (c Config) ToGCConfig() (gc.Config, error) { return c.GC.toGCConfig() }
