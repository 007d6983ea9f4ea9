// Package api provides the shared HTTP API envelope and DTO types for LLMLab.
//
// This package holds the request/response envelope (Response, ErrorInfo)
// and the data-transfer types returned by api/handlers, independent of
// any single handler's implementation.
//
// # API Overview
//
// LLMLab exposes a RESTful API under /api/v1 for:
//   - Metered proxying of chat/completions requests to OpenAI, Anthropic,
//     and Google Gemini, billed against a tenant's proxy key
//   - Credential (provider API key) CRUD
//   - Usage log listing, tag management, and spend aggregation
//   - Budget and anomaly-alert configuration
//   - Health monitoring and Prometheus metrics
//
// # Authentication
//
// Owned endpoints (everything under /api/v1 except the proxy routes)
// require a JWT bearer token:
//
//	Authorization: Bearer <jwt>
//
// Proxy routes authenticate with a minted proxy key instead:
//
//	Authorization: Bearer llmlab_pk_<hex>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
