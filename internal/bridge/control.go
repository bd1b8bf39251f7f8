package bridge

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// PeerRequest names the peer for ConnectPeer and DisconnectPeer.
type PeerRequest struct {
	DestinationHex string `json:"destinationHex"`
}

// SendRequest carries a direct message. BytesBase64 may be empty but not absent.
type SendRequest struct {
	DestinationHex string  `json:"destinationHex"`
	BytesBase64    *string `json:"bytesBase64"`
}

// BroadcastRequest carries a broadcast payload. BytesBase64 may be empty but not absent.
type BroadcastRequest struct {
	BytesBase64 *string `json:"bytesBase64"`
}

// CapabilitiesRequest replaces the announce capability string. An empty
// string clears it; a missing one is rejected.
type CapabilitiesRequest struct {
	CapabilityString *string `json:"capabilityString"`
}

// LogLevelRequest sets the node log level. Empty means Info.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// DefaultLogLevel is applied when a LogLevelRequest names no level.
const DefaultLogLevel = string(nativenode.LogInfo)

// Status fetches and decodes the node status.
func (b *Bridge) Status() (*nativenode.StatusReport, error) {
	callID := uuid.NewString()
	raw := strings.TrimSpace(b.node.GetStatusJSON())
	if raw == "" {
		return nil, b.translator.translate("status", callID, MsgStatusFailed)
	}

	var status nativenode.StatusReport
	err := json.Unmarshal([]byte(raw), &status)
	if err == nil && raw == "null" {
		err = errors.New("status is not a JSON object")
	}
	if err != nil {
		b.log.WithError(err).WithField("call_id", callID).Error(MsgStatusParseFailed)
		return nil, &Error{
			Kind:    KindDecode,
			Op:      "status",
			Code:    CodeStatusParse,
			Message: MsgStatusParseFailed,
			CallID:  callID,
			Cause:   err,
		}
	}
	return &status, nil
}

// ConnectPeer asks the node to link to req.DestinationHex.
func (b *Bridge) ConnectPeer(req PeerRequest) error {
	if req.DestinationHex == "" {
		return validationError("connectPeer", MsgDestinationRequired)
	}
	return b.invoke("connectPeer", MsgConnectFailed, func() int {
		return b.node.ConnectPeer(req.DestinationHex)
	})
}

// DisconnectPeer tears down the link to req.DestinationHex.
func (b *Bridge) DisconnectPeer(req PeerRequest) error {
	if req.DestinationHex == "" {
		return validationError("disconnectPeer", MsgDestinationRequired)
	}
	return b.invoke("disconnectPeer", MsgDisconnectFailed, func() int {
		return b.node.DisconnectPeer(req.DestinationHex)
	})
}

// Send delivers a payload to one destination.
func (b *Bridge) Send(req SendRequest) error {
	if req.DestinationHex == "" {
		return validationError("send", MsgDestinationRequired)
	}
	if req.BytesBase64 == nil {
		return validationError("send", MsgBytesRequired)
	}

	raw, err := json.Marshal(nativenode.SendRequest{
		DestinationHex: req.DestinationHex,
		BytesBase64:    *req.BytesBase64,
	})
	if err != nil {
		return &Error{Kind: KindValidation, Op: "send", Code: CodeInvalidArgument, Message: MsgSendFailed, Cause: err}
	}
	return b.invoke("send", MsgSendFailed, func() int {
		return b.node.SendJSON(string(raw))
	})
}

// Broadcast sends a payload to every known destination.
func (b *Bridge) Broadcast(req BroadcastRequest) error {
	if req.BytesBase64 == nil {
		return validationError("broadcast", MsgBytesRequired)
	}
	payload := *req.BytesBase64
	return b.invoke("broadcast", MsgBroadcastFailed, func() int {
		return b.node.BroadcastBase64(payload)
	})
}

// SetAnnounceCapabilities replaces the capability string carried in announces.
func (b *Bridge) SetAnnounceCapabilities(req CapabilitiesRequest) error {
	if req.CapabilityString == nil {
		return validationError("setAnnounceCapabilities", MsgCapabilityRequired)
	}
	capabilities := *req.CapabilityString
	return b.invoke("setAnnounceCapabilities", MsgCapabilitiesFailed, func() int {
		return b.node.SetAnnounceCapabilities(capabilities)
	})
}

// SetLogLevel changes the node's log verbosity.
func (b *Bridge) SetLogLevel(req LogLevelRequest) error {
	level := req.Level
	if level == "" {
		level = DefaultLogLevel
	}
	return b.invoke("setLogLevel", MsgLogLevelFailed, func() int {
		return b.node.SetLogLevel(level)
	})
}

// RefreshHubDirectory asks the node for a fresh hub directory.
func (b *Bridge) RefreshHubDirectory() error {
	return b.invoke("refreshHubDirectory", MsgHubRefreshFailed, b.node.RefreshHubDirectory)
}

// RemoveAllListeners always succeeds. Listener bookkeeping belongs to the host.
func (b *Bridge) RemoveAllListeners() error {
	return nil
}
