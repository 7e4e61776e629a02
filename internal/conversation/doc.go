// Package conversation implements the message pipeline.
//
// # Pipeline
//
// Service.HandleIncomingMessage takes one client message through these steps:
//
//  1. Validate the request (the only step that can return an error)
//  2. Persist the inbound message
//  3. For TEXT, build the transcript, resolve the agent, and invoke it
//     through the worker pool; for IMAGE, use a fixed placeholder reply
//  4. Persist the reply
//  5. Return the request echoed back with ai_response
//
// Storage failures in steps 2 and 4 are logged and counted but do not fail
// the request. Agent failures of any kind (unknown agent, unknown type,
// construction error, processing error, timeout) produce FallbackReply.
//
// # Transcripts
//
// The Assembler renders the pair's history between MemoryStart and
// MemoryEnd, one "ROLE: text" line per message, and appends the live turn
// as a final USER line. Image rows appear as "[image]". A positive window
// keeps only the most recent rows.
//
// # Live updates
//
// When a Broadcaster is configured, every persisted message is published
// to subscribers of its (user, agent) pair.
package conversation
