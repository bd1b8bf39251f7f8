package loopback

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// emit queues an event in its wire form. When the queue is full the oldest
// event is discarded.
func (n *Node) emit(event string, payload any) {
	raw, err := json.Marshal(struct {
		Event   string `json:"event"`
		Payload any    `json:"payload"`
	}{event, payload})
	if err != nil {
		return
	}

	for {
		select {
		case n.queue <- string(raw):
			return
		default:
		}
		select {
		case <-n.queue:
		default:
		}
	}
}

// eventHook turns the node's own log records into log events.
type eventHook struct {
	node *Node
}

func (h *eventHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *eventHook) Fire(e *logrus.Entry) error {
	h.node.emit(nativenode.EventLog, nativenode.LogRecord{
		Level:   string(fromLogrusLevel(e.Level)),
		Message: e.Message,
	})
	return nil
}

// forwardHook copies the node's log records to the host logger.
type forwardHook struct {
	target logrus.FieldLogger
}

func (h *forwardHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *forwardHook) Fire(e *logrus.Entry) error {
	l := h.target.WithFields(e.Data)
	switch e.Level {
	case logrus.TraceLevel, logrus.DebugLevel:
		l.Debug(e.Message)
	case logrus.InfoLevel:
		l.Info(e.Message)
	case logrus.WarnLevel:
		l.Warn(e.Message)
	default:
		l.Error(e.Message)
	}
	return nil
}

func toLogrusLevel(l nativenode.LogLevel) logrus.Level {
	switch l {
	case nativenode.LogTrace:
		return logrus.TraceLevel
	case nativenode.LogDebug:
		return logrus.DebugLevel
	case nativenode.LogWarn:
		return logrus.WarnLevel
	case nativenode.LogError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func fromLogrusLevel(l logrus.Level) nativenode.LogLevel {
	switch l {
	case logrus.TraceLevel:
		return nativenode.LogTrace
	case logrus.DebugLevel:
		return nativenode.LogDebug
	case logrus.InfoLevel:
		return nativenode.LogInfo
	case logrus.WarnLevel:
		return nativenode.LogWarn
	default:
		return nativenode.LogError
	}
}
