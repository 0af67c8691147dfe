package backend

import (
	"encoding/json"
	"strings"

	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/pkg/errors"
)

// Decoder reconstructs semantic StreamEvents from one backend response
// stream. It tracks open content blocks by index, buffers partial tool-input
// JSON until the block closes, and accumulates usage reports.
//
// A Decoder is stateful and single-use: create one per Submit call and feed
// it every RawEvent in emission order.
//
// Classification errors (duplicate block index, delta for an unopened
// block, malformed tool input) are protocol violations and are returned as
// errors rather than events; they must not be treated as transient faults.
type Decoder struct {
	blocks     map[int]*pendingBlock
	usage      costs.Usage
	stopReason turns.StopReason
	done       bool
}

type pendingBlock struct {
	typ  BlockType
	id   string
	name string
	buf  strings.Builder
}

func NewDecoder() *Decoder {
	return &Decoder{blocks: map[int]*pendingBlock{}}
}

// Decode classifies one raw event into zero or more StreamEvents.
func (d *Decoder) Decode(ev RawEvent) ([]StreamEvent, error) {
	if d.done {
		return nil, errors.Errorf("decoder: event %s after message_stop", ev.Type)
	}

	switch ev.Type {
	case RawPing:
		return nil, nil

	case RawMessageStart:
		if ev.Usage != nil {
			d.usage.Add(*ev.Usage)
		}
		return nil, nil

	case RawContentBlockStart:
		if ev.Block == nil {
			return nil, errors.New("decoder: content_block_start without block")
		}
		if _, exists := d.blocks[ev.Index]; exists {
			return nil, errors.Errorf("decoder: duplicate content block index %d", ev.Index)
		}
		d.blocks[ev.Index] = &pendingBlock{typ: ev.Block.Type, id: ev.Block.ID, name: ev.Block.Name}
		return nil, nil

	case RawContentBlockDelta:
		block, exists := d.blocks[ev.Index]
		if !exists {
			return nil, errors.Errorf("decoder: delta for unopened block index %d", ev.Index)
		}
		switch block.typ {
		case BlockText:
			if ev.Text == "" {
				return nil, nil
			}
			return []StreamEvent{TextDelta{Text: ev.Text}}, nil
		case BlockThinking:
			if ev.Text == "" {
				return nil, nil
			}
			return []StreamEvent{ThinkingDelta{Text: ev.Text}}, nil
		case BlockToolUse:
			// Buffered until content_block_stop; partial JSON is never exposed.
			block.buf.WriteString(ev.PartialJSON)
			return nil, nil
		default:
			return nil, errors.Errorf("decoder: unknown block type %s", block.typ)
		}

	case RawContentBlockStop:
		block, exists := d.blocks[ev.Index]
		if !exists {
			return nil, errors.Errorf("decoder: stop for unopened block index %d", ev.Index)
		}
		delete(d.blocks, ev.Index)
		if block.typ != BlockToolUse {
			return nil, nil
		}
		input := block.buf.String()
		if input == "" {
			input = "{}"
		}
		if !json.Valid([]byte(input)) {
			return nil, errors.Errorf("decoder: tool call %s closed with malformed input JSON", block.id)
		}
		return []StreamEvent{ToolCallRequested{
			ID:    block.id,
			Name:  block.name,
			Input: json.RawMessage(input),
		}}, nil

	case RawMessageDelta:
		if ev.Usage != nil {
			d.usage.Add(*ev.Usage)
		}
		if ev.StopReason != "" {
			d.stopReason = ev.StopReason
		}
		return nil, nil

	case RawMessageStop:
		if ev.Usage != nil {
			d.usage.Add(*ev.Usage)
		}
		if ev.StopReason != "" {
			d.stopReason = ev.StopReason
		}
		if len(d.blocks) > 0 {
			return nil, errors.Errorf("decoder: message_stop with %d content blocks still open", len(d.blocks))
		}
		if d.stopReason == "" {
			return nil, errors.New("decoder: message_stop without a stop reason")
		}
		d.done = true
		return []StreamEvent{Stop{Reason: d.stopReason, Usage: d.usage}}, nil

	case RawError:
		if ev.Err == nil {
			return nil, errors.New("decoder: error event without fault")
		}
		d.done = true
		return []StreamEvent{FaultEvent{Fault: *ev.Err}}, nil

	default:
		return nil, errors.Errorf("decoder: unknown raw event type %s", ev.Type)
	}
}
