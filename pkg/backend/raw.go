package backend

import (
	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// RawEventType enumerates the wire-level events a backend stream produces.
// The shape follows the block-structured streaming protocol: a message
// wraps indexed content blocks, each opened, streamed and closed in order.
type RawEventType string

const (
	RawMessageStart      RawEventType = "message_start"
	RawContentBlockStart RawEventType = "content_block_start"
	RawContentBlockDelta RawEventType = "content_block_delta"
	RawContentBlockStop  RawEventType = "content_block_stop"
	RawMessageDelta      RawEventType = "message_delta"
	RawMessageStop       RawEventType = "message_stop"
	RawPing              RawEventType = "ping"
	RawError             RawEventType = "error"
)

// BlockType classifies the content of one streamed block.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockThinking BlockType = "thinking"
	BlockToolUse  BlockType = "tool_use"
)

// RawBlock describes a content block at content_block_start. ID and Name are
// only set for tool_use blocks.
type RawBlock struct {
	Type BlockType
	ID   string
	Name string
}

// RawEvent is one wire event from the backend stream. Which fields are
// populated depends on Type:
//
//   - content_block_start: Index, Block
//   - content_block_delta: Index, Text (text/thinking) or PartialJSON (tool_use)
//   - message_delta/message_stop: StopReason, Usage (when reported)
//   - error: Err
type RawEvent struct {
	Type        RawEventType
	Index       int
	Block       *RawBlock
	Text        string
	PartialJSON string
	StopReason  turns.StopReason
	Usage       *costs.Usage
	Err         *Fault
}
