package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   ErrorCode
		action RetryAction
	}{
		{"401 invalid key", 401, `{"error":"bad key"}`, CodeInvalidCredential, FailFast},
		{"403 forbidden", 403, ``, CodeInvalidCredential, FailFast},
		{"404 unknown model", 404, `model not found`, CodeModelUnavailable, AdvanceModel},
		{"429 rate limit", 429, ``, CodeRateLimited, RetrySameModel},
		{"500 server error", 500, ``, CodeServiceUnavailable, RetrySameModel},
		{"503 overloaded", 503, ``, CodeServiceUnavailable, RetrySameModel},
		{"body marker rate limit", 400, `Rate limit exceeded for org`, CodeRateLimited, RetrySameModel},
		{"body marker quota", 400, `insufficient quota`, CodeRateLimited, RetrySameModel},
		{"body marker overloaded", 400, `the engine is overloaded`, CodeServiceUnavailable, RetrySameModel},
		{"body marker model missing", 400, `the model gpt-x was not found`, CodeModelUnavailable, AdvanceModel},
		{"unclassifiable 400", 400, `bad request`, CodeUnknown, FailFast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.status, []byte(tt.body))
			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.action, err.Action())
		})
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, NewExtractionError(CodeRateLimited, nil).Transient())
	assert.True(t, NewExtractionError(CodeModelUnavailable, nil).Transient())
	assert.False(t, NewExtractionError(CodeInvalidCredential, nil).Transient())
	assert.False(t, NewExtractionError(CodeMalformedResponse, nil).Transient())
	assert.False(t, NewExtractionError(CodeMissingCredential, nil).Transient())
}

func TestUserMessageFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, userMessages[CodeUnknown], UserMessage(ErrorCode("NO_SUCH_CODE")))
	assert.NotEmpty(t, UserMessage(CodeRateLimited))
}

func TestExtractionErrorWrapping(t *testing.T) {
	cause := assert.AnError
	err := NewExtractionError(CodeServiceUnavailable, cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SERVICE_UNAVAILABLE")
}
