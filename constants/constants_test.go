package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanStartAnalysis(t *testing.T) {
	assert.True(t, ItemStatusIdle.CanStartAnalysis())
	assert.True(t, ItemStatusError.CanStartAnalysis())
	assert.False(t, ItemStatusAnalyzing.CanStartAnalysis())
	assert.False(t, ItemStatusSuccess.CanStartAnalysis())
}

func TestExtensionChecks(t *testing.T) {
	assert.True(t, IsAllowedExt(NormalizeExt(".JPG")))
	assert.True(t, IsAllowedExt(NormalizeExt("jpeg")))
	assert.True(t, IsAllowedExt(NormalizeExt(".png")))
	assert.False(t, IsAllowedExt(NormalizeExt(".gif")))
	assert.False(t, IsAllowedExt(NormalizeExt("")))
}

func TestMIMEForExt(t *testing.T) {
	assert.Equal(t, "image/jpeg", MIMEForExt("jpg"))
	assert.Equal(t, "image/jpeg", MIMEForExt("jpeg"))
	assert.Equal(t, "image/png", MIMEForExt("png"))
}
