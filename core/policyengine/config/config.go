//
// Copyright (C) 2020 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
// Andreas Schade <san@zurich.ibm.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the policy engine's runtime
// configuration: viper reads layered YAML/env/flag sources into a plain
// struct, then go-playground/validator checks the result.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// CacheMode selects whether the predicate cache is active for a Policy.
type CacheMode string

// Cache modes.
const (
	CacheOn  CacheMode = "on"
	CacheOff CacheMode = "off"
)

// Config is the policy engine's runtime configuration.
type Config struct {
	// Concurrency bounds the worker pool rule evaluations are dispatched
	// onto. 1 (the default) is strictly sequential.
	Concurrency int `mapstructure:"concurrency" validate:"min=1"`

	// CacheMode turns the predicate cache on or off.
	CacheMode CacheMode `mapstructure:"cachemode" validate:"oneof=on off"`

	// PendingWindow is decoded from configuration but read by nothing in
	// the engine; watch.Watcher reloads on filesystem events and applies no
	// staleness window.
	PendingWindow time.Duration `mapstructure:"pendingwindow"`

	// RaiseUnhandled converts a non-empty errors list into an error return
	// from Analyze, for callers that treat any violation as fatal.
	RaiseUnhandled bool `mapstructure:"raiseunhandled"`

	// UnrestrictedImports is decoded from configuration but read by nothing
	// in the engine. Loading never checks imports against the builtin
	// registry, whatever its value; calling an import with no registered
	// builtin is an evaluation error at call time.
	UnrestrictedImports bool `mapstructure:"unrestrictedimports"`

	// PoliciesPath names a directory of *.ipl policy source files.
	// policyengine.LoadDir and watch.New take their directory as an
	// argument and do not read this field.
	PoliciesPath string `mapstructure:"policiespath" validate:"required"`
}

// Default returns the configuration used when no explicit settings are
// supplied: sequential evaluation, cache on.
func Default() Config {
	return Config{
		Concurrency: 1,
		CacheMode:   CacheOn,
	}
}

var validate = validator.New()

// Validate checks c against its `validate` tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid policy engine configuration: %w", err)
	}
	return nil
}

// Load reads configuration from path (a YAML file) layered under env vars
// prefixed IPL_, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("IPL")
	v.AutomaticEnv()
	v.SetDefault("concurrency", cfg.Concurrency)
	v.SetDefault("cachemode", string(cfg.CacheMode))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
