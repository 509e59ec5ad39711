package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/baloghm/meterbill/internal/llm"
)

// ErrSchemaViolation marks a model reply that is not valid JSON or is missing
// a required reading object.
var ErrSchemaViolation = errors.New("reply does not match readings schema")

// Result holds both readings plus the derived usage. Usage is always
// recomputed from the two readings and never trusted from any other source.
type Result struct {
	StartReading llm.Reading `json:"startReading"`
	EndReading   llm.Reading `json:"endReading"`
	Usage        float64     `json:"usage"`
}

// ComputeUsage returns round(|end - start|, 2). Never negative, never more
// than two decimal digits.
func ComputeUsage(start, end float64) float64 {
	return math.Round(math.Abs(end-start)*100) / 100
}

// Recompute refreshes Usage after a reading edit.
func (r *Result) Recompute() {
	r.Usage = ComputeUsage(r.StartReading.Value, r.EndReading.Value)
}

type wireReading struct {
	Date  string `json:"date"`
	Value any    `json:"value"`
}

// Normalize parses the raw structured reply into a Result. Numeric values
// that arrive as strings (stray thousands separators included) are coerced;
// anything else fails with ErrSchemaViolation.
func Normalize(raw []byte) (Result, error) {
	var wire struct {
		StartReading *wireReading `json:"startReading"`
		EndReading   *wireReading `json:"endReading"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if wire.StartReading == nil || wire.EndReading == nil {
		return Result{}, fmt.Errorf("%w: missing startReading or endReading", ErrSchemaViolation)
	}

	startVal, err := coerceValue(wire.StartReading.Value)
	if err != nil {
		return Result{}, fmt.Errorf("%w: startReading.value: %v", ErrSchemaViolation, err)
	}
	endVal, err := coerceValue(wire.EndReading.Value)
	if err != nil {
		return Result{}, fmt.Errorf("%w: endReading.value: %v", ErrSchemaViolation, err)
	}

	res := Result{
		StartReading: llm.Reading{Date: strings.TrimSpace(wire.StartReading.Date), Value: startVal},
		EndReading:   llm.Reading{Date: strings.TrimSpace(wire.EndReading.Date), Value: endVal},
	}
	res.Recompute()
	return res, nil
}

func coerceValue(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		s = strings.ReplaceAll(s, " ", "")
		if s == "" {
			return 0, fmt.Errorf("empty value")
		}
		return strconv.ParseFloat(s, 64)
	case nil:
		return 0, fmt.Errorf("null value")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
