package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderVerification_containsCode(t *testing.T) {
	body, err := RenderVerification("042137")
	require.NoError(t, err)

	assert.Contains(t, body, "042137")
	assert.Contains(t, body, "valid for 15 minutes")
}

func TestRenderVerification_escapesInput(t *testing.T) {
	body, err := RenderVerification("<script>")
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
}
