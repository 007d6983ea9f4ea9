// Copyright (c) LLMLab Authors.
// Licensed under the MIT License.

/*
Package types provides shared types used across LLMLab's packages.

# Overview

types is the lowest-level shared package: it has no internal
dependencies and supplies the common type contracts consumed by the
credential, cache, provider, proxy, aggregate, budget, anomaly, and
api packages. Cross-package context keys and the structured error
type both live here to avoid import cycles.

# Core types

  - Error / ErrorCode — structured error carrier with HTTP status,
    retryable flag, and originating provider name.

# Capabilities

  - Context propagation: WithTraceID / WithTenantID / WithUserID /
    WithRoles / WithCredentialID and their accessor counterparts.
  - Error chaining: NewError / WithCause / WithHTTPStatus /
    WithRetryable / WithProvider, plus IsRetryable / GetErrorCode.
*/
package types
