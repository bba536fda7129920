package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoStrings(t *testing.T) {
	dev := Info{Version: "dev", CommitHash: "abcdef1234", BuildTime: "now"}
	assert.False(t, dev.Tagged())
	assert.Equal(t, "jawala dev (commit abcdef1, built now)", dev.String())
	assert.Equal(t, "jawala-cli/dev+abcdef1", dev.ClientInfo())

	tagged := Info{Version: "v1.2.0", CommitHash: "abc", BuildTime: "now"}
	assert.True(t, tagged.Tagged())
	assert.Equal(t, "jawala v1.2.0 (commit abc, built now)", tagged.String())
	assert.Equal(t, "jawala-cli/1.2.0", tagged.ClientInfo())
}

func TestGetFillsRuntime(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
