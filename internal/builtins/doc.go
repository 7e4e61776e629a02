// ABOUTME: Package documentation for the built-in agent types
// ABOUTME: Describes the two-step extract-then-answer flow shared by the data-backed agents

// Package builtins provides the agent types shipped with agentdesk:
// generic, weather, windy, opensky and sky_analysis.
//
// The generic type answers a transcript with one completion. The other
// types first ask the completer for a JSON object matching a small schema
// (city, coordinates, airport, country...), fetch live data from the
// matching provider, and then ask the completer to answer the transcript
// with that data attached. When the extraction yields nothing usable the
// agent falls back to a plain completion so the model can ask the user
// for the missing detail.
//
// A type whose provider is not configured is still registered; resolving
// an agent of that type fails with ErrProviderUnavailable.
package builtins
