package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeExtraFieldsPatchesTopLevelKeys(t *testing.T) {
	payload := []byte(`{"contents":[]}`)

	merged, err := mergeExtraFields(payload, `{"safetySettings":[{"category":"HARM_CATEGORY_HARASSMENT"}]}`)
	require.NoError(t, err)

	assert.JSONEq(t, `{"contents":[],"safetySettings":[{"category":"HARM_CATEGORY_HARASSMENT"}]}`, string(merged))
}

func TestMergeExtraFieldsRejectsNonObject(t *testing.T) {
	_, err := mergeExtraFields([]byte(`{}`), `[1,2,3]`)
	assert.Error(t, err)
}

func TestMergeExtraFieldsOverwritesExistingKey(t *testing.T) {
	payload := []byte(`{"sessionId":"old"}`)

	merged, err := mergeExtraFields(payload, `{"sessionId":"new"}`)
	require.NoError(t, err)

	assert.JSONEq(t, `{"sessionId":"new"}`, string(merged))
}
