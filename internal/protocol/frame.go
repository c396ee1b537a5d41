// Package protocol decodes the frames the assistant backend sends over the
// chat WebSocket and recovers payloads embedded in tool responses.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

type FrameType string

const (
	TypeText         FrameType = "text"
	TypeToolResponse FrameType = "tool_response"
)

// Frame is the outer wire envelope: {"type": ..., "content": {...}}.
type Frame struct {
	Type    FrameType       `json:"type"`
	Content json.RawMessage `json:"content"`
}

type TextContent struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type ToolResponse struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Content    string `json:"content"`
}

type ToolResponseContent struct {
	ToolResponses []ToolResponse `json:"tool_responses"`
}

// First returns the content of the first tool response. Later responses are
// not consulted.
func (c ToolResponseContent) First() (string, bool) {
	if len(c.ToolResponses) == 0 {
		return "", false
	}
	return c.ToolResponses[0].Content, true
}

type Kind int

const (
	KindIgnored Kind = iota
	KindText
	KindToolResponse
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolResponse:
		return "tool_response"
	default:
		return "ignored"
	}
}

// Decoded is one classified inbound frame.
type Decoded struct {
	Kind         Kind
	Type         FrameType
	Text         TextContent
	ToolResponse ToolResponseContent
	// Plain is set when the frame was taken verbatim as reply text.
	Plain bool
}

type Mode int

const (
	// ModeJSON expects typed JSON envelopes.
	ModeJSON Mode = iota
	// ModePlain treats every frame as the assistant's reply text.
	ModePlain
)

// ParseMode maps a config value to a Mode; anything but "plain" is JSON.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "plain") {
		return ModePlain
	}
	return ModeJSON
}

type Decoder struct {
	mode Mode
}

func NewDecoder(mode Mode) *Decoder {
	return &Decoder{mode: mode}
}

// Decode classifies one raw frame. Frame types other than text and
// tool_response, text frames without a sender or body, and content of the
// wrong shape come back as KindIgnored with a nil error. Data that is not a
// JSON envelope yields a *DecodeError.
func (d *Decoder) Decode(raw []byte) (Decoded, error) {
	if d != nil && d.mode == ModePlain {
		if strings.TrimSpace(string(raw)) == "" {
			return Decoded{Kind: KindIgnored, Plain: true}, nil
		}
		return Decoded{
			Kind:  KindText,
			Type:  TypeText,
			Text:  TextContent{Content: string(raw)},
			Plain: true,
		}, nil
	}
	return Decode(raw)
}

// Decode parses a JSON frame.
func Decode(raw []byte) (Decoded, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Decoded{}, &DecodeError{Raw: string(raw), Err: err}
	}

	out := Decoded{Kind: KindIgnored, Type: frame.Type}
	if len(frame.Content) == 0 || string(frame.Content) == "null" {
		return out, nil
	}

	switch frame.Type {
	case TypeText:
		var text TextContent
		if err := json.Unmarshal(frame.Content, &text); err != nil {
			if isShapeMismatch(err) {
				return out, nil
			}
			return Decoded{}, &DecodeError{Raw: string(raw), Err: err}
		}
		if text.Sender == "" || text.Content == "" {
			return out, nil
		}
		out.Kind = KindText
		out.Text = text
	case TypeToolResponse:
		var tool ToolResponseContent
		if err := json.Unmarshal(frame.Content, &tool); err != nil {
			if isShapeMismatch(err) {
				return out, nil
			}
			return Decoded{}, &DecodeError{Raw: string(raw), Err: err}
		}
		if len(tool.ToolResponses) == 0 {
			return out, nil
		}
		out.Kind = KindToolResponse
		out.ToolResponse = tool
	}
	return out, nil
}

// isShapeMismatch reports valid JSON whose fields have unexpected types.
func isShapeMismatch(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}
