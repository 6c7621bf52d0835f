package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		version string
		target  string
		ge      bool
		gt      bool
	}{
		{"0.3.0", "0.3.0", true, false},
		{"0.3.1", "0.3.0", true, true},
		{"0.2.9", "0.3.0", false, false},
		{"v1.0.0", "0.9.0", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.version+"_"+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.ge, IsVersionGreaterOrEqualThan(tt.version, tt.target))
			assert.Equal(t, tt.gt, IsVersionGreaterThan(tt.version, tt.target))
		})
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(SchemaVersion))
	assert.True(t, IsValid("v1.2.3"))
	assert.False(t, IsValid("not-a-version"))
}

func TestGetCurrentVersion(t *testing.T) {
	assert.Equal(t, DevVersion, GetCurrentVersion("dev"))
	assert.Equal(t, DevVersion, GetCurrentVersion("demo"))
	assert.Equal(t, Version, GetCurrentVersion("prod"))
}
