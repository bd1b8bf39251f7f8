package bridge

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTranslator(node *mockNode) (*translator, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return newTranslator(node, logger), hook
}

func TestTranslator_EnvelopeCodeAndMessage(t *testing.T) {
	node := newMockNode()
	node.SetLastError(`{"code":"X","message":"Y"}`)
	tr, hook := newTestTranslator(node)

	err := tr.translate("connectPeer", "call-1", MsgConnectFailed)

	require.NotNil(t, err)
	assert.Equal(t, KindNative, err.Kind)
	assert.Equal(t, "X", err.Code)
	assert.Equal(t, "Y", err.Message)
	assert.Equal(t, "call-1", err.CallID)
	assert.NoError(t, err.Cause)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Native error [X]: Y", hook.LastEntry().Message)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestTranslator_NoEnvelopeUsesFallback(t *testing.T) {
	node := newMockNode()
	tr, hook := newTestTranslator(node)

	err := tr.translate("send", "call-2", MsgSendFailed)

	assert.Equal(t, CodeNativeError, err.Code)
	assert.Equal(t, MsgSendFailed, err.Message)
	assert.Equal(t, MsgSendFailed, err.Error())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, MsgSendFailed, hook.LastEntry().Message)
}

func TestTranslator_Defaults(t *testing.T) {
	t.Run("missing_code", func(t *testing.T) {
		node := newMockNode()
		node.SetLastError(`{"message":"socket closed"}`)
		tr, _ := newTestTranslator(node)

		err := tr.translate("start", "c", MsgStartFailed)
		assert.Equal(t, CodeNativeError, err.Code)
		assert.Equal(t, "socket closed", err.Message)
	})

	t.Run("missing_message", func(t *testing.T) {
		node := newMockNode()
		node.SetLastError(`{"code":"Timeout"}`)
		tr, _ := newTestTranslator(node)

		err := tr.translate("start", "c", MsgStartFailed)
		assert.Equal(t, "Timeout", err.Code)
		assert.Equal(t, MsgStartFailed, err.Message)
	})

	t.Run("explicit_empty_values_are_kept", func(t *testing.T) {
		node := newMockNode()
		node.SetLastError(`{"code":"","message":""}`)
		tr, hook := newTestTranslator(node)

		err := tr.translate("start", "c", MsgStartFailed)
		assert.Equal(t, "", err.Code)
		assert.Equal(t, "", err.Message)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, "Native error []: ", hook.LastEntry().Message)
	})

	t.Run("null_values_use_defaults", func(t *testing.T) {
		node := newMockNode()
		node.SetLastError(`{"code":null,"message":null}`)
		tr, _ := newTestTranslator(node)

		err := tr.translate("start", "c", MsgStartFailed)
		assert.Equal(t, CodeNativeError, err.Code)
		assert.Equal(t, MsgStartFailed, err.Message)
	})
}

func TestTranslator_UnparsableEnvelope(t *testing.T) {
	node := newMockNode()
	node.SetLastError(`{"code":`)
	tr, _ := newTestTranslator(node)

	err := tr.translate("broadcast", "c", MsgBroadcastFailed)

	assert.Equal(t, KindNative, err.Kind)
	assert.Equal(t, MsgBroadcastFailed, err.Message)
	assert.Error(t, err.Cause)
	assert.Contains(t, err.Error(), MsgBroadcastFailed)
}

func TestTranslator_SlotIsReadOnce(t *testing.T) {
	node := newMockNode()
	node.SetLastError(`{"code":"NotRunning","message":"node not running"}`)
	tr, _ := newTestTranslator(node)

	first := tr.translate("stop", "a", MsgStopFailed)
	second := tr.translate("stop", "b", MsgStopFailed)

	assert.Equal(t, "NotRunning", first.Code)
	assert.Equal(t, CodeNativeError, second.Code)
	assert.Equal(t, MsgStopFailed, second.Message)
}

func TestErrorHelpers(t *testing.T) {
	err := error(validationError("send", MsgBytesRequired))

	assert.True(t, IsKind(err, KindValidation))
	assert.False(t, IsKind(err, KindNative))
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	assert.Equal(t, "", CodeOf(assert.AnError))
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "decode", KindDecode.String())
}
