package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReadings(t *testing.T) {
	valid := []byte(`{
		"startReading": {"date": "2024-01-01 08:00", "value": 694957.7},
		"endReading":   {"date": "2024-02-01 08:00", "value": 705310.2}
	}`)
	assert.NoError(t, ValidateReadings(valid))

	missingEnd := []byte(`{"startReading": {"date": "2024-01-01", "value": 1}}`)
	assert.Error(t, ValidateReadings(missingEnd))

	stringValue := []byte(`{
		"startReading": {"date": "2024-01-01", "value": "123"},
		"endReading":   {"date": "2024-02-01", "value": 2}
	}`)
	assert.Error(t, ValidateReadings(stringValue))

	emptyDate := []byte(`{
		"startReading": {"date": "", "value": 1},
		"endReading":   {"date": "2024-02-01", "value": 2}
	}`)
	assert.Error(t, ValidateReadings(emptyDate))

	extraField := []byte(`{
		"startReading": {"date": "2024-01-01", "value": 1},
		"endReading":   {"date": "2024-02-01", "value": 2},
		"confidence":   0.9
	}`)
	assert.Error(t, ValidateReadings(extraField), "additional properties are rejected")

	assert.Error(t, ValidateReadings([]byte(`not json`)))
}

func TestValidateReadingsReusesCompiledSchema(t *testing.T) {
	first, err1 := compiledReadingsSchema()
	second, err2 := compiledReadingsSchema()
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Same(t, first, second)
}
