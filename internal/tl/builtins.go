package tl

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// The four built-in constructors recognized regardless of schema (§4.4),
// grounded on original_source/mtproto_mitm/tl/core_types.py.
const (
	MessageID      uint32 = 0x5bb8e511
	MsgContainerID uint32 = 0x73f1f8dc
	RpcResultID    uint32 = 0xf35c6d01
	GzipPackedID   uint32 = 0x3072cfa1
)

// readMessage decodes the bare `message` layout used both as a standalone
// top-level object and, without its own per-element constructor id, as the
// element type of a MsgContainer's `messages` vector: msg_id:long
// seqno:int bytes:int body:Object, where body is read from an exact
// sub-slice of the declared byte length.
func readMessage(r *Reader, registry *Registry) (*Object, error) {
	msgID, err := r.ReadInt64()
	if err != nil {
		return nil, fmt.Errorf("tl: message.msg_id: %w", err)
	}
	seqNo, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("tl: message.seqno: %w", err)
	}
	length, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("tl: message.bytes: %w", err)
	}
	if length < 0 {
		return nil, fmt.Errorf("tl: message.bytes: negative length %d", length)
	}

	sub, err := r.Sub(int(length))
	if err != nil {
		return nil, fmt.Errorf("tl: message.body: %w", err)
	}
	body, err := ReadObject(sub, registry)
	if err != nil {
		return nil, fmt.Errorf("tl: message.body: %w", err)
	}

	return &Object{
		ConstructorID: MessageID,
		Name:          "message",
		Fields: []FieldValue{
			{Name: "msg_id", Value: msgID},
			{Name: "seqno", Value: seqNo},
			{Name: "body", Value: body},
		},
	}, nil
}

func readMsgContainer(r *Reader, registry *Registry) (*Object, error) {
	count, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("tl: msg_container.count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("tl: msg_container.count: negative %d", count)
	}

	messages := make([]any, 0, count)
	for i := int32(0); i < count; i++ {
		m, err := readMessage(r, registry)
		if err != nil {
			return nil, fmt.Errorf("tl: msg_container.messages[%d]: %w", i, err)
		}
		messages = append(messages, m)
	}

	return &Object{
		ConstructorID: MsgContainerID,
		Name:          "msg_container",
		Fields:        []FieldValue{{Name: "messages", Value: messages}},
	}, nil
}

func readRpcResult(r *Reader, registry *Registry) (*Object, error) {
	reqMsgID, err := r.ReadInt64()
	if err != nil {
		return nil, fmt.Errorf("tl: rpc_result.req_msg_id: %w", err)
	}
	result, err := ReadObject(r, registry)
	if err != nil {
		return nil, fmt.Errorf("tl: rpc_result.result: %w", err)
	}

	return &Object{
		ConstructorID: RpcResultID,
		Name:          "rpc_result",
		Fields: []FieldValue{
			{Name: "req_msg_id", Value: reqMsgID},
			{Name: "result", Value: result},
		},
	}, nil
}

// readGzipPacked decompresses the packed payload and recursively decodes
// it as a fresh TLObject. The decoded object, not the raw compressed
// bytes, is what ends up in the output field: that is how gzip_packed
// behaves at every call site in MTProto, so surfacing the raw bytes would
// only push the unwrap step onto every consumer.
func readGzipPacked(r *Reader, registry *Registry) (*Object, error) {
	packed, err := r.ReadTLBytes()
	if err != nil {
		return nil, fmt.Errorf("tl: gzip_packed.packed_data: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("tl: gzip_packed: %w", err)
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("tl: gzip_packed: decompress: %w", err)
	}

	inner, err := ReadObject(NewReader(decompressed), registry)
	if err != nil {
		return nil, fmt.Errorf("tl: gzip_packed: inner object: %w", err)
	}

	return &Object{
		ConstructorID: GzipPackedID,
		Name:          "gzip_packed",
		Fields:        []FieldValue{{Name: "packed_data", Value: inner}},
	}, nil
}
