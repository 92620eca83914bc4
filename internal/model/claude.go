// Package model holds the shared vocabulary the translator and SSE emitter
// use when walking wire JSON with gjson/sjson: event names, stop-reason
// strings, and other tag values that both packages must agree on.
//
// The request and response bodies themselves are never unmarshaled into
// typed structs — the translator and emitter operate directly on raw JSON
// via gjson/sjson, matching the teacher's own dominant idiom for
// variant-tagged content (see DESIGN.md's schema-model entry) — so this
// package carries only the string constants both sides share, not envelope
// types nothing constructs.
package model

// SSE event names, in mandated ordering (spec.md §3 / §4.4).
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventError             = "error"
)

// Downstream stop-reason vocabulary.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopToolUse      = "tool_use"
	StopStopSequence = "stop_sequence"
)
