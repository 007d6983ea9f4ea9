// Copyright (c) LLMLab Authors.
// Licensed under the MIT License.

/*
Package handlers implements LLMLab's HTTP API request handlers.

# Overview

handlers implements the request logic for every LLMLab HTTP endpoint:
the metered proxy catch-all, credential/tag/budget/webhook CRUD, usage
log and spend-aggregation reads, and health checks. Every handler
follows the standard net/http signature and shares a common response
envelope.

# Core types

  - ProxyHandler      — the proxy catch-all; runs the metering pipeline
  - CredentialHandler — provider credential and proxy-key CRUD
  - TagHandler        — tag registry CRUD and log tag attach/detach
  - BudgetHandler      — budget threshold CRUD
  - WebhookHandler    — alert webhook CRUD
  - UsageHandler      — usage log listing/detail and spend aggregation reads
  - HealthHandler     — service health checks (/health, /healthz)
  - Response          — unified JSON response envelope (success + data + error)
  - ErrorInfo         — structured error info (code, message, retryable)
  - ResponseWriter    — wraps http.ResponseWriter to capture status code
  - HealthCheck       — pluggable health check interface (database, cache, etc.)

# Capabilities

  - Unified response format: WriteSuccess / WriteError / WriteJSON helpers
  - Request validation: DecodeJSONBody (1 MB limit + strict mode),
    ValidateContentType
  - ErrorCode -> HTTP status mapping (4xx/5xx)
  - SSE streaming passthrough for proxied completions
  - Pluggable health checks: RegisterCheck registers a custom HealthCheck
*/
package handlers
