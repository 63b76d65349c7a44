// Package codec serializes conversation histories to a compact binary form.
//
// Information Hiding:
// - Wire layout (protobuf wire encoding via protowire) hidden behind Encode/Decode
// - Each message role has its own decode function; no reflection, no registration
// - Scratch buffers are owned by a Codec and reused across calls
package codec

import (
	"errors"
	"fmt"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/richinex/counsel/model"
)

// formatVersion is written at the head of every snapshot.
const formatVersion = 1

var (
	// ErrCorrupt is returned when a snapshot cannot be parsed.
	ErrCorrupt = errors.New("codec: corrupt snapshot")
	// ErrUnknownRole is returned for a record with an unrecognized role tag.
	ErrUnknownRole = errors.New("codec: unknown role tag")
)

// History fields.
const (
	fieldVersion protowire.Number = 1
	fieldMessage protowire.Number = 2
)

// Message record fields.
const (
	fieldRole protowire.Number = 1
	fieldBody protowire.Number = 2
)

// Variant body fields.
const (
	fieldText     protowire.Number = 1
	fieldToolName protowire.Number = 2
	fieldMeta     protowire.Number = 15
)

// Metadata entry fields.
const (
	fieldKey   protowire.Number = 1
	fieldValue protowire.Number = 2
)

type roleTag uint64

const (
	tagSystem    roleTag = 1
	tagUser      roleTag = 2
	tagAssistant roleTag = 3
	tagTool      roleTag = 4
)

// Codec encodes and decodes histories. A Codec is NOT safe for concurrent
// use; obtain one from a Pool.
type Codec struct {
	buf  []byte
	body []byte
	keys []string
}

// New creates a Codec.
func New() *Codec {
	return &Codec{buf: make([]byte, 0, 4096), body: make([]byte, 0, 1024)}
}

func (c *Codec) reset() {
	c.buf = c.buf[:0]
	c.body = c.body[:0]
	c.keys = c.keys[:0]
}

// Encode serializes h. The returned slice is owned by the caller.
func (c *Codec) Encode(h model.History) ([]byte, error) {
	c.buf = c.buf[:0]
	c.buf = protowire.AppendTag(c.buf, fieldVersion, protowire.VarintType)
	c.buf = protowire.AppendVarint(c.buf, formatVersion)

	for i, m := range h {
		record, err := c.encodeMessage(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		c.buf = protowire.AppendTag(c.buf, fieldMessage, protowire.BytesType)
		c.buf = protowire.AppendBytes(c.buf, record)
	}
	return slices.Clone(c.buf), nil
}

func (c *Codec) encodeMessage(m model.Message) ([]byte, error) {
	tag, err := tagFor(m.Role)
	if err != nil {
		return nil, err
	}

	body := c.body[:0]
	body = protowire.AppendTag(body, fieldText, protowire.BytesType)
	body = protowire.AppendString(body, m.Text)

	skip := ""
	if tag == tagTool {
		skip = model.MetaToolName
		body = protowire.AppendTag(body, fieldToolName, protowire.BytesType)
		body = protowire.AppendString(body, m.Metadata[model.MetaToolName])
	}
	body = c.appendMetadata(body, m.Metadata, skip)
	c.body = body

	record := make([]byte, 0, len(body)+8)
	record = protowire.AppendTag(record, fieldRole, protowire.VarintType)
	record = protowire.AppendVarint(record, uint64(tag))
	record = protowire.AppendTag(record, fieldBody, protowire.BytesType)
	record = protowire.AppendBytes(record, body)
	return record, nil
}

// appendMetadata writes entries in key order so equal histories encode identically.
func (c *Codec) appendMetadata(b []byte, meta map[string]string, skip string) []byte {
	c.keys = c.keys[:0]
	for k := range meta {
		if k != skip {
			c.keys = append(c.keys, k)
		}
	}
	slices.Sort(c.keys)
	for _, k := range c.keys {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fieldValue, protowire.BytesType)
		entry = protowire.AppendString(entry, meta[k])
		b = protowire.AppendTag(b, fieldMeta, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// Decode parses a snapshot produced by Encode.
func (c *Codec) Decode(data []byte) (model.History, error) {
	h := model.History{}
	version := uint64(0)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, corrupt(protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			version = v
			data = data[n:]
		case num == fieldMessage && typ == protowire.BytesType:
			record, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			m, err := decodeRecord(record)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", len(h), err)
			}
			h = append(h, m)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	return h, nil
}

func decodeRecord(record []byte) (model.Message, error) {
	var (
		tag     roleTag
		body    []byte
		hasBody bool
	)
	for len(record) > 0 {
		num, typ, n := protowire.ConsumeTag(record)
		if n < 0 {
			return model.Message{}, corrupt(protowire.ParseError(n))
		}
		record = record[n:]
		switch {
		case num == fieldRole && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(record)
			if n < 0 {
				return model.Message{}, corrupt(protowire.ParseError(n))
			}
			tag = roleTag(v)
			record = record[n:]
		case num == fieldBody && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(record)
			if n < 0 {
				return model.Message{}, corrupt(protowire.ParseError(n))
			}
			body, hasBody = b, true
			record = record[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, record)
			if n < 0 {
				return model.Message{}, corrupt(protowire.ParseError(n))
			}
			record = record[n:]
		}
	}
	if !hasBody {
		return model.Message{}, fmt.Errorf("%w: record without body", ErrCorrupt)
	}

	switch tag {
	case tagSystem:
		return decodeSystem(body)
	case tagUser:
		return decodeUser(body)
	case tagAssistant:
		return decodeAssistant(body)
	case tagTool:
		return decodeTool(body)
	default:
		return model.Message{}, fmt.Errorf("%w: %d", ErrUnknownRole, tag)
	}
}

func decodeSystem(body []byte) (model.Message, error) {
	f, err := parseBody(body)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{Role: model.RoleSystem, Text: f.text, Metadata: f.meta}, nil
}

func decodeUser(body []byte) (model.Message, error) {
	f, err := parseBody(body)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{Role: model.RoleUser, Text: f.text, Metadata: f.meta}, nil
}

func decodeAssistant(body []byte) (model.Message, error) {
	f, err := parseBody(body)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{Role: model.RoleAssistant, Text: f.text, Metadata: f.meta}, nil
}

func decodeTool(body []byte) (model.Message, error) {
	f, err := parseBody(body)
	if err != nil {
		return model.Message{}, err
	}
	msg := model.ToolMessage(f.toolName, f.text)
	for k, v := range f.meta {
		msg.Metadata[k] = v
	}
	return msg, nil
}

type bodyFields struct {
	text     string
	toolName string
	meta     map[string]string
}

func parseBody(body []byte) (bodyFields, error) {
	var f bodyFields
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return f, corrupt(protowire.ParseError(n))
		}
		body = body[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return f, corrupt(protowire.ParseError(n))
			}
			body = body[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(body)
		if n < 0 {
			return f, corrupt(protowire.ParseError(n))
		}
		body = body[n:]

		switch num {
		case fieldText:
			f.text = string(v)
		case fieldToolName:
			f.toolName = string(v)
		case fieldMeta:
			k, val, err := parseEntry(v)
			if err != nil {
				return f, err
			}
			if f.meta == nil {
				f.meta = make(map[string]string)
			}
			f.meta[k] = val
		}
	}
	return f, nil
}

func parseEntry(entry []byte) (string, string, error) {
	var key, value string
	for len(entry) > 0 {
		num, typ, n := protowire.ConsumeTag(entry)
		if n < 0 || typ != protowire.BytesType {
			return "", "", fmt.Errorf("%w: bad metadata entry", ErrCorrupt)
		}
		entry = entry[n:]
		s, n := protowire.ConsumeString(entry)
		if n < 0 {
			return "", "", corrupt(protowire.ParseError(n))
		}
		entry = entry[n:]
		switch num {
		case fieldKey:
			key = s
		case fieldValue:
			value = s
		}
	}
	return key, value, nil
}

func tagFor(r model.Role) (roleTag, error) {
	switch r {
	case model.RoleSystem:
		return tagSystem, nil
	case model.RoleUser:
		return tagUser, nil
	case model.RoleAssistant:
		return tagAssistant, nil
	case model.RoleTool:
		return tagTool, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, r)
	}
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}
