package bridge

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// translator turns a failed native call into an *Error using the node's
// last-error slot.
type translator struct {
	node nativenode.Node
	log  logrus.FieldLogger
}

func newTranslator(node nativenode.Node, log logrus.FieldLogger) *translator {
	return &translator{node: node, log: log}
}

// translate must be called right after the failing call. The slot is
// read-once, so a second call for the same failure sees nothing.
func (t *translator) translate(op, callID, fallback string) *Error {
	log := t.log.WithFields(logrus.Fields{"op": op, "call_id": callID})
	out := &Error{
		Kind:    KindNative,
		Op:      op,
		Code:    CodeNativeError,
		Message: fallback,
		CallID:  callID,
	}

	raw := strings.TrimSpace(t.node.TakeLastErrorJSON())
	if raw == "" || raw == "null" {
		log.Error(fallback)
		return out
	}

	// Only absent keys take the defaults; an explicit "" is kept.
	var envelope struct {
		Code    *string `json:"code"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		log.WithError(err).Errorf("%s (unreadable native error)", fallback)
		out.Cause = err
		return out
	}

	if envelope.Code != nil {
		out.Code = *envelope.Code
	}
	if envelope.Message != nil {
		out.Message = *envelope.Message
	}
	log.Errorf("Native error [%s]: %s", out.Code, out.Message)
	return out
}
