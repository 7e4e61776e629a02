// Package gateway serves agentdesk over HTTP.
//
// # Overview
//
// The Gateway owns every server component: the SQLite store, the history
// store, the agent registry with the builtin types, the worker pool, the
// message pipeline, the live event broadcaster, and the optional replay
// cache and Prometheus registry. New builds all of them from a
// config.Config.
//
// # HTTP API
//
//   - POST /api/send - run a message through the pipeline
//   - POST /api/add_message - append to history without dispatch
//   - GET /api/get_chat - ordered history of one conversation
//   - POST /api/clear_chat - delete one conversation
//   - GET /api/all_agents - configured agents, paginated
//   - GET /api/agent_types - registered type keys
//   - POST /api/users - register a user
//   - GET /api/events - SSE feed of new messages for one conversation
//   - GET /health, GET /health/ready - liveness and database readiness
//   - GET /metrics - Prometheus exposition, when enabled
//
// When auth.jwt_secret is set, /api/* requires a bearer token and handlers
// refuse to act for a user_id other than the token's subject.
//
// # Event stream
//
//	event: ready
//	data: {"subscription_id": "..."}
//
//	event: message
//	data: {"id": "...", "sender": "AGENT", "text": "...", ...}
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks; shuts down when ctx is canceled
package gateway
