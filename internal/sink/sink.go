// Package sink persists a completed tunnel's accumulated MessageRecords as
// a JSON document (§6.1, §6.7). It uses only encoding/json: no third-party
// JSON library appears anywhere in the retrieved corpus, so the custom
// number/byte encodings are implemented as hand-rolled json.Marshaler
// wrapper types instead.
package sink

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/quietwire/mtmitm/internal/session"
	"github.com/quietwire/mtmitm/internal/tl"
)

// maxSafeInt is the largest integer magnitude a JSON double can represent
// without losing precision; values beyond it render as decimal strings.
const maxSafeInt = 1<<53 - 1

// Writer writes one JSON document per completed tunnel under dir.
type Writer struct {
	dir string
}

var _ session.Sink = (*Writer)(nil)

// New returns a Writer rooted at dir. The directory must already exist;
// callers create it once at startup from the CLI's -o/--output option.
func New(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write implements session.Sink: it renders records as a JSON array and
// writes it to <dir>/<unix_ms>_<sid4>.json.
func (w *Writer) Write(tunnelID string, records []session.Record) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]recordDoc, 0, len(records))
	for _, r := range records {
		docs = append(docs, toRecordDoc(r))
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: marshal session %s: %w", tunnelID, err)
	}

	name := fmt.Sprintf("%d_%s.json", time.Now().UnixMilli(), sid4(records))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sink: write %s: %w", path, err)
	}
	return nil
}

// sid4 is the lowest 16 bits of the last record's session_id, as 4
// lowercase hex digits, or "0000" when the last record carries none.
func sid4(records []session.Record) string {
	last := records[len(records)-1]
	if last.Metadata.SessionID == nil {
		return "0000"
	}
	return fmt.Sprintf("%04x", uint16(*last.Metadata.SessionID))
}

// recordDoc mirrors §6.1's JSON document shape for a single MessageRecord.
type recordDoc struct {
	Metadata metadataDoc `json:"metadata"`
	Object   any         `json:"object"`
	RawData  *b64Bytes   `json:"raw_data"`
}

type metadataDoc struct {
	AuthKeyID bigUint   `json:"auth_key_id"`
	MessageID *bigInt   `json:"message_id"`
	SessionID *bigInt   `json:"session_id"`
	Salt      *bigInt   `json:"salt"`
	SeqNo     *int32    `json:"seq_no"`
	MsgKey    *hexBytes `json:"msg_key"`
}

func toRecordDoc(r session.Record) recordDoc {
	md := metadataDoc{AuthKeyID: bigUint(r.Metadata.AuthKeyID)}
	if r.Metadata.MessageID != nil {
		v := bigInt(*r.Metadata.MessageID)
		md.MessageID = &v
	}
	if r.Metadata.SessionID != nil {
		v := bigInt(*r.Metadata.SessionID)
		md.SessionID = &v
	}
	if r.Metadata.Salt != nil {
		v := bigInt(*r.Metadata.Salt)
		md.Salt = &v
	}
	if r.Metadata.SeqNo != nil {
		v := *r.Metadata.SeqNo
		md.SeqNo = &v
	}
	if r.Metadata.MsgKey != nil {
		v := hexBytes(r.Metadata.MsgKey[:])
		md.MsgKey = &v
	}

	doc := recordDoc{Metadata: md}
	if r.Object != nil {
		doc.Object = objectValue(r.Object)
	}
	if r.RawBytes != nil {
		b := b64Bytes(r.RawBytes)
		doc.RawData = &b
	}
	return doc
}

// objectValue renders a decoded TLObject as the "nested map of
// field→value" the document contract calls for. The constructor's schema
// name rides along under the reserved "_name" key.
func objectValue(obj *tl.Object) map[string]any {
	out := make(map[string]any, len(obj.Fields)+1)
	out["_name"] = obj.Name
	for _, f := range obj.Fields {
		out[f.Name] = fieldValue(f.Value)
	}
	return out
}

func fieldValue(v any) any {
	switch val := v.(type) {
	case int32:
		return val
	case uint32:
		return val
	case int64:
		return bigInt(val)
	case [16]byte:
		return hexBytes(val[:])
	case [32]byte:
		return hexBytes(val[:])
	case float64:
		return val
	case bool:
		return val
	case []byte:
		return hexBytes(val)
	case string:
		return val
	case *tl.Object:
		return objectValue(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = fieldValue(e)
		}
		return out
	default:
		return fmt.Sprintf("%v", val)
	}
}

// hexBytes renders as a lowercase hex string.
type hexBytes []byte

func (b hexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// b64Bytes renders as standard base64, used only for the top-level
// raw_data field (ciphertext or an undecodable payload).
type b64Bytes []byte

func (b b64Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

// bigInt renders as a plain JSON number unless its magnitude would lose
// precision in a double, in which case it renders as a decimal string.
type bigInt int64

func (v bigInt) MarshalJSON() ([]byte, error) {
	n := int64(v)
	if n > maxSafeInt || n < -maxSafeInt {
		return json.Marshal(strconv.FormatInt(n, 10))
	}
	return []byte(strconv.FormatInt(n, 10)), nil
}

// bigUint is bigInt's unsigned counterpart, used for auth_key_id.
type bigUint uint64

func (v bigUint) MarshalJSON() ([]byte, error) {
	n := uint64(v)
	if n > maxSafeInt {
		return json.Marshal(strconv.FormatUint(n, 10))
	}
	return []byte(strconv.FormatUint(n, 10)), nil
}
