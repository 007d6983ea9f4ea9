// Copyright 2026 LLMLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config provides LLMLab's configuration management.

# Overview

The config package loads the application configuration aggregate from
defaults, an optional YAML file, and environment variables, merging in
that priority order: "defaults -> YAML file -> environment variables".

# Core types

  - Config: the top-level configuration aggregate, covering Server,
    Database, Redis, Cache, Encryption, JWT, GitHub, Providers, Pool,
    Budget, Anomaly, Forecast, Log, and Telemetry.
  - Loader: a builder-style loader chaining config path, env prefix,
    and custom validators.

# Capabilities

  - Multi-source loading: YAML file, environment variables (LLMLAB_
    prefix), and built-in defaults.
  - Validation: built-in structural checks plus pluggable validators,
    run once at startup before any handler is wired.

# Example

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("LLMLAB").
		Load()
*/
package config
