/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package isb

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Codec turns messages into bytes and back. Round trips must be stable.
type Codec interface {
	Marshal(Message) ([]byte, error)
	Unmarshal([]byte) (Message, error)
}

const (
	fieldKind         protowire.Number = 1
	fieldID           protowire.Number = 2
	fieldCreatedAt    protowire.Number = 3
	fieldPartitionKey protowire.Number = 4
	fieldMetaData     protowire.Number = 5

	fieldMetaDataKey     protowire.Number = 1
	fieldMetaDataPayload protowire.Number = 2
)

// ProtoWireCodec encodes messages with the protobuf wire format. Payloads are stored as JSON
// documents keyed by their metadata key.
// A ProtoWireCodec reuses an internal scratch buffer and is not safe for concurrent use, rent
// one per goroutine from a pool.
type ProtoWireCodec struct {
	registry *PayloadRegistry
	scratch  []byte
}

var _ Codec = (*ProtoWireCodec)(nil)

func NewProtoWireCodec(registry *PayloadRegistry) *ProtoWireCodec {
	return &ProtoWireCodec{registry: registry}
}

// Marshal encodes m. Metadata entries are written in key order so equal messages encode to equal bytes.
func (c *ProtoWireCodec) Marshal(m Message) ([]byte, error) {
	b := c.scratch[:0]
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.kind))
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendString(b, m.ID)
	// a zero time has no nanosecond representation, it is left out and decodes as zero
	if !m.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	}
	if m.keyed {
		b = protowire.AppendTag(b, fieldPartitionKey, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.key)))
	}
	for _, key := range m.PayloadKeys() {
		payload, err := c.registry.encode(m.metaData[key])
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload %q, %w", key, err)
		}
		var entry []byte
		entry = protowire.AppendTag(entry, fieldMetaDataKey, protowire.BytesType)
		entry = protowire.AppendString(entry, key)
		entry = protowire.AppendTag(entry, fieldMetaDataPayload, protowire.BytesType)
		entry = protowire.AppendBytes(entry, payload)
		b = protowire.AppendTag(b, fieldMetaData, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	c.scratch = b
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Unmarshal decodes a message produced by Marshal.
func (c *ProtoWireCodec) Unmarshal(b []byte) (Message, error) {
	m := Message{metaData: make(map[string]Payload)}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, MessageDecodeErr{Message: "bad tag", InternalErr: protowire.ParseError(n)}
		}
		b = b[n:]
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, MessageDecodeErr{Message: "bad kind", InternalErr: protowire.ParseError(n)}
			}
			m.kind = MessageKind(v)
			b = b[n:]
		case num == fieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Message{}, MessageDecodeErr{Message: "bad id", InternalErr: protowire.ParseError(n)}
			}
			m.ID = v
			b = b[n:]
		case num == fieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, MessageDecodeErr{Message: "bad creation time", InternalErr: protowire.ParseError(n)}
			}
			m.CreatedAt = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		case num == fieldPartitionKey && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, MessageDecodeErr{Message: "bad partition key", InternalErr: protowire.ParseError(n)}
			}
			m.key, m.keyed = int(protowire.DecodeZigZag(v)), true
			b = b[n:]
		case num == fieldMetaData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, MessageDecodeErr{Message: "bad metadata", InternalErr: protowire.ParseError(n)}
			}
			key, payload, err := c.unmarshalMetaData(v)
			if err != nil {
				return Message{}, err
			}
			m.metaData[key] = payload
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, MessageDecodeErr{Message: fmt.Sprintf("bad field %d", num), InternalErr: protowire.ParseError(n)}
			}
			b = b[n:]
		}
	}
	if m.kind != Data && m.kind != Control {
		return Message{}, MessageDecodeErr{Message: fmt.Sprintf("unknown message kind %d", m.kind)}
	}
	return m, nil
}

func (c *ProtoWireCodec) unmarshalMetaData(b []byte) (string, Payload, error) {
	var (
		key     string
		payload []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || typ != protowire.BytesType {
			return "", nil, MessageDecodeErr{Message: "bad metadata entry"}
		}
		b = b[n:]
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return "", nil, MessageDecodeErr{Message: "bad metadata entry", InternalErr: protowire.ParseError(n)}
		}
		switch num {
		case fieldMetaDataKey:
			key = string(v)
		case fieldMetaDataPayload:
			payload = v
		}
		b = b[n:]
	}
	p, err := c.registry.decode(key, payload)
	if err != nil {
		return "", nil, MessageDecodeErr{Message: fmt.Sprintf("payload %q", key), InternalErr: err}
	}
	return key, p, nil
}
