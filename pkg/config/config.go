// Copyright (c) 2025 A Bit of Help, Inc.

// Package config provides configuration options for a compression session.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Unlimited disables the round limit; the session still stops at MaxHistory rounds
	Unlimited = -1

	// NoTimeBudget lets every round wait for all codecs to report
	NoTimeBudget time.Duration = -1

	// MaxHistory is the most rounds a container header can describe
	MaxHistory = 255

	// DefaultGracePeriod is how long a finished round waits for in-flight workers
	// before abandoning them
	DefaultGracePeriod = time.Second
)

// Options contains the limits of one compression session
type Options struct {
	// MaxRounds caps the number of adopted rounds; negative means Unlimited
	MaxRounds int `yaml:"max_rounds"`

	// WorkerCount is the number of concurrent codec workers; zero means one per CPU
	WorkerCount int `yaml:"worker_count"`

	// TimeBudget bounds how long a round waits for results, measured from round start;
	// negative means NoTimeBudget
	TimeBudget time.Duration `yaml:"time_budget"`

	// GracePeriod bounds how long a round joins in-flight workers after collection
	GracePeriod time.Duration `yaml:"grace_period"`

	// Verify decodes the produced container and compares it to the input before writing
	Verify bool `yaml:"verify"`
}

// DefaultOptions returns Options with default values
func DefaultOptions() *Options {
	return &Options{
		MaxRounds:   Unlimited,
		WorkerCount: runtime.NumCPU(),
		TimeBudget:  NoTimeBudget,
		GracePeriod: DefaultGracePeriod,
	}
}

// Load reads options from a YAML file. Keys absent from the file keep their defaults.
func Load(filename string) (*Options, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return opts, nil
}

// Validate checks the options and fills in WorkerCount when it is zero
func (o *Options) Validate() error {
	if o.WorkerCount < 0 {
		return fmt.Errorf("worker_count must not be negative")
	}
	if o.WorkerCount == 0 {
		o.WorkerCount = runtime.NumCPU()
	}

	if o.MaxRounds > MaxHistory {
		return fmt.Errorf("max_rounds must be at most %d", MaxHistory)
	}

	if o.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative")
	}

	return nil
}

// HasTimeBudget reports whether rounds are bounded by a time budget
func (o *Options) HasTimeBudget() bool {
	return o.TimeBudget >= 0
}

// RoundLimit returns the effective cap on adopted rounds
func (o *Options) RoundLimit() int {
	if o.MaxRounds < 0 || o.MaxRounds > MaxHistory {
		return MaxHistory
	}
	return o.MaxRounds
}
