package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
	"github.com/valyala/fastjson"
)

// maxLineSize bounds a single trace line.
const maxLineSize = 4 * 1024 * 1024

// Decoder turns raw JSON lines into trace records.
// It is safe for concurrent use.
type Decoder struct {
	parser fastjson.ParserPool
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses one line. Anything that is not a JSON object yields an
// error wrapping model.ErrDecode.
func (d *Decoder) Decode(line []byte) (model.TraceRecord, error) {
	p := d.parser.Get()
	defer d.parser.Put(p)

	v, err := p.ParseBytes(line)
	if err != nil {
		return model.TraceRecord{}, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	if v.Type() != fastjson.TypeObject {
		return model.TraceRecord{}, fmt.Errorf("%w: expected object, got %s", model.ErrDecode, v.Type())
	}
	return recordFromValue(v), nil
}

// DecodeStream decodes every non-blank line of r and hands valid records
// to fn. Malformed lines are counted and skipped.
func (d *Decoder) DecodeStream(r io.Reader, fn func(model.TraceRecord)) (model.ScanStats, error) {
	var stats model.ScanStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++
		rec, err := d.Decode(line)
		if err != nil {
			stats.Skipped++
			continue
		}
		stats.Decoded++
		fn(rec)
	}
	return stats, sc.Err()
}

// recordFromValue copies every field out of v; v is only valid until the
// parser is reused.
func recordFromValue(v *fastjson.Value) model.TraceRecord {
	rec := model.TraceRecord{
		RequestID:  string(v.GetStringBytes("request_id")),
		Timestamp:  string(v.GetStringBytes("timestamp")),
		Node:       string(v.GetStringBytes("node")),
		Action:     string(v.GetStringBytes("action")),
		Decision:   string(v.GetStringBytes("decision")),
		ReasonCode: string(v.GetStringBytes("reason_code")),
		Reasoning:  string(v.GetStringBytes("reasoning")),

		PCTR:            optFloat(v, "pCTR"),
		PCVR:            optFloat(v, "pCVR"),
		ECPM:            optFloat(v, "eCPM"),
		LatencyMs:       optFloat(v, "latency_ms"),
		SecondBestBid:   optFloat(v, "second_best_bid"),
		ActualPaidPrice: optFloat(v, "actual_paid_price"),
		SavedAmount:     optFloat(v, "saved_amount"),
	}

	if vars := v.Get("internal_variables"); vars != nil && vars.Type() == fastjson.TypeObject {
		obj, _ := vars.Object()
		rec.InternalVariables = make(map[string]model.Value, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			rec.InternalVariables[string(key)] = toValue(val)
		})
	}

	return rec
}

func optFloat(v *fastjson.Value, key string) *float64 {
	f := v.Get(key)
	if f == nil || f.Type() != fastjson.TypeNumber {
		return nil
	}
	x := f.GetFloat64()
	return &x
}

func toValue(v *fastjson.Value) model.Value {
	switch v.Type() {
	case fastjson.TypeString:
		return model.StringValue(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		return model.NumberValue(v.GetFloat64())
	case fastjson.TypeTrue:
		return model.BoolValue(true)
	case fastjson.TypeFalse:
		return model.BoolValue(false)
	case fastjson.TypeNull:
		return model.Value{}
	default:
		return model.RawValue(v.String())
	}
}
