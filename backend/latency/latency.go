// Package latency holds the JSON-configurable per-micro-op latency
// table used by the execution units.
package latency

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/ox86sim/backend/op"
)

// Config holds latency values, in cycles, for each class of micro-op.
type Config struct {
	// ALULatency is the latency for arithmetic/logic ALU ops
	// (Add, Sub, And, Or, Xor). Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the latency for Brn micro-ops. Default: 0 cycles
	// (resolved the same cycle it issues; the branch itself resolves at
	// retire, not execution).
	BranchLatency uint64 `json:"branch_latency"`

	// BranchMispredictPenalty is the number of cycles lost to refilling
	// the front end after a flush. Default: 12.
	BranchMispredictPenalty uint64 `json:"branch_mispredict_penalty"`

	// StoreLatency is the AGU store latency. Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// NopLatency is the Nop micro-op latency. Default: 0 cycles.
	NopLatency uint64 `json:"nop_latency"`
}

// Default returns the reference latency configuration.
func Default() *Config {
	return &Config{
		ALULatency:              1,
		BranchLatency:           0,
		BranchMispredictPenalty: 12,
		StoreLatency:            1,
		NopLatency:              0,
	}
}

// Load reads a Config from a JSON file, applying it on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("latency: read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("latency: parse config: %w", err)
	}
	return cfg, nil
}

// Save writes c to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("latency: serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("latency: write config: %w", err)
	}
	return nil
}

// Validate checks that every latency value is sane.
func (c *Config) Validate() error {
	// Zero is a legal latency (Nop/Brn complete the issuing cycle), so
	// there is nothing to reject here beyond basic sanity; kept as a
	// hook for future latency classes that do require a positive floor.
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Table resolves a Uop's execution latency from a Config.
type Table struct {
	cfg *Config
}

// NewTable builds a Table over the default Config.
func NewTable() *Table { return &Table{cfg: Default()} }

// NewTableWithConfig builds a Table over an explicit Config.
func NewTableWithConfig(cfg *Config) *Table { return &Table{cfg: cfg} }

// Latency returns the execution latency, in cycles, for u.
func (t *Table) Latency(u op.Uop) uint64 {
	switch u.Kind {
	case op.KAlu:
		switch u.ALU {
		case op.OpNop:
			return t.cfg.NopLatency
		case op.OpBrn:
			return t.cfg.BranchLatency
		default:
			return t.cfg.ALULatency
		}
	case op.KAgu:
		return t.cfg.StoreLatency
	default:
		return 0
	}
}

// MispredictPenalty returns the configured misprediction penalty.
func (t *Table) MispredictPenalty() uint64 { return t.cfg.BranchMispredictPenalty }
