package mtapi

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTransport Kind = iota + 1
	KindInvalidCredentials
	KindInvalidSession
	KindBridgeRejected
)

var (
	ErrTransport          = errors.New("mtapi: transport error")
	ErrInvalidCredentials = errors.New("mtapi: invalid credentials")
	ErrInvalidSession     = errors.New("mtapi: invalid session")
	ErrBridgeRejected     = errors.New("mtapi: rejected by bridge")
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidSession:
		return "invalid_session"
	case KindBridgeRejected:
		return "bridge_rejected"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindInvalidCredentials:
		return ErrInvalidCredentials
	case KindInvalidSession:
		return ErrInvalidSession
	case KindBridgeRejected:
		return ErrBridgeRejected
	default:
		return nil
	}
}

// Error is the single failure shape returned by the client. Callers that only
// need success/failure can treat it as a plain error; the connection manager
// inspects Kind through errors.Is against the package sentinels.
type Error struct {
	Kind       Kind
	Op         string
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("mtapi %s: %s (HTTP %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("mtapi %s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message returns the bridge's human readable message when there is one.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
