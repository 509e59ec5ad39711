package llm

import "context"

// Reading is a single timestamped meter value as reported by the model.
type Reading struct {
	Date  string  `json:"date"` // "YYYY-MM-DD HH:MM"
	Value float64 `json:"value"`
}

// MeterReadings is the normalized shape we want from the LLM.
type MeterReadings struct {
	StartReading Reading `json:"startReading"`
	EndReading   Reading `json:"endReading"`
}

// ExtractRequest carries one compressed meter photo plus extraction hints.
type ExtractRequest struct {
	ImageDataURL string // base64 data URL of the compressed photo
	ImageMIME    string
	MeterHint    string // optional meter name to disambiguate multi-register displays
}

// ReadingExtractor is the interface the analysis orchestrator depends on.
// Implementations return the raw, schema-validated reply JSON; parsing and
// usage derivation belong to the normalizer.
type ReadingExtractor interface {
	ExtractReadings(ctx context.Context, req ExtractRequest) ([]byte, error)
}
