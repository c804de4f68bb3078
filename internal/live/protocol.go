package live

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/relvacode/iso8601"

	"github.com/jengzang/drivesense-backend/internal/models"
)

// Message types
const (
	TypeWindow     = "window"
	TypePrediction = "prediction"
)

// sampleKeys must all be present for a sample to be well formed
var sampleKeys = [...]string{"timestamp", "AccX", "AccY", "AccZ", "GyroX", "GyroY", "GyroZ"}

// ProtocolError describes an inbound message that is dropped without reply
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// WindowMessage is a validated inbound "window" message
type WindowMessage struct {
	SessionID string
	Samples   []models.TelemetrySample
}

// Prediction is the only outbound message
type Prediction struct {
	Type  string       `json:"type" cbor:"type"`
	Label models.Label `json:"label" cbor:"label"`
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("live: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("live: CBOR decoder initialization failed: " + err.Error())
	}
}

// Decode parses one frame. Text frames are JSON, binary frames CBOR with
// the same field names. Every rejection is a *ProtocolError.
func Decode(frameType int, data []byte) (*WindowMessage, error) {
	var raw map[string]any
	switch frameType {
	case websocket.TextMessage:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, protocolErrorf("malformed json: %v", err)
		}
	case websocket.BinaryMessage:
		if err := cborDec.Unmarshal(data, &raw); err != nil {
			return nil, protocolErrorf("malformed cbor: %v", err)
		}
	default:
		return nil, protocolErrorf("unsupported frame type %d", frameType)
	}
	return parseWindow(raw)
}

// Encode serialises a reply in the encoding of the frame it answers
func Encode(frameType int, p Prediction) ([]byte, error) {
	if frameType == websocket.BinaryMessage {
		return cborEnc.Marshal(p)
	}
	return json.Marshal(p)
}

func parseWindow(raw map[string]any) (*WindowMessage, error) {
	if raw == nil {
		return nil, protocolErrorf("not an object")
	}
	if typ, _ := raw["type"].(string); typ != TypeWindow {
		return nil, protocolErrorf("unsupported message type %q", typ)
	}

	sessionID, _ := raw["session_id"].(string)
	if sessionID == "" {
		return nil, protocolErrorf("missing session_id")
	}

	payload, ok := raw["payload"].([]any)
	if !ok {
		return nil, protocolErrorf("payload is not a list")
	}

	samples := make([]models.TelemetrySample, len(payload))
	for i, item := range payload {
		s, err := parseSample(item)
		if err != nil {
			return nil, protocolErrorf("sample %d: %v", i, err)
		}
		samples[i] = s
	}

	return &WindowMessage{SessionID: sessionID, Samples: samples}, nil
}

func parseSample(item any) (models.TelemetrySample, error) {
	var s models.TelemetrySample

	m, ok := item.(map[string]any)
	if !ok {
		return s, fmt.Errorf("not an object")
	}
	for _, k := range sampleKeys {
		if _, ok := m[k]; !ok {
			return s, fmt.Errorf("missing %s", k)
		}
	}

	ts, err := parseTimestamp(m["timestamp"])
	if err != nil {
		return s, err
	}
	s.Timestamp = ts

	fields := []struct {
		key string
		dst *float64
	}{
		{"AccX", &s.AccX}, {"AccY", &s.AccY}, {"AccZ", &s.AccZ},
		{"GyroX", &s.GyroX}, {"GyroY", &s.GyroY}, {"GyroZ", &s.GyroZ},
	}
	for _, f := range fields {
		v, ok := toFloat(m[f.key])
		if !ok {
			return s, fmt.Errorf("%s is not a finite number", f.key)
		}
		*f.dst = v
	}
	return s, nil
}

// parseTimestamp accepts ISO 8601 strings, Unix milliseconds and CBOR
// time tags. Times must fall within years 1 to 9999.
func parseTimestamp(v any) (time.Time, error) {
	var ts time.Time
	switch t := v.(type) {
	case string:
		parsed, err := iso8601.ParseString(t)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %v", err)
		}
		ts = parsed
	case time.Time:
		ts = t
	default:
		ms, ok := toFloat(v)
		if !ok {
			return time.Time{}, fmt.Errorf("timestamp has unsupported type %T", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63
		if ms < math.MinInt64 || ms >= math.MaxInt64 {
			return time.Time{}, fmt.Errorf("timestamp %g ms out of range", ms)
		}
		ts = time.UnixMilli(int64(ms))
	}

	ts = ts.UTC()
	if y := ts.Year(); y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("timestamp year %d out of range", y)
	}
	return ts, nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
