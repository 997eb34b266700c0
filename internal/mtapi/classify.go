package mtapi

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mehrbod2002/mtdesk/internal/constants"
)

// Every bridge response goes through classify before its payload is read.
// MTAPI reports failures both as HTTP errors and as {code, message} objects
// inside 200 OK bodies.

var (
	reInvalidSession     = regexp.MustCompile(`(?i)invalid (token|session|id)|not connected|session (expired|not found)`)
	reInvalidCredentials = regexp.MustCompile(`(?i)invalid (account|credentials|login|password)`)
	reServerFailure      = regexp.MustCompile(`(?i)server not found|invalid|error`)
)

type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const maxErrorBody = 256

func decodeEnvelope(body []byte) (envelope, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, false
	}
	return env, env.Code != "" || env.Message != ""
}

func classify(op string, status int, body []byte) error {
	env, hasEnv := decodeEnvelope(body)
	if hasEnv {
		if err := classifyEnvelope(op, status, env); err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		msg := env.Message
		if msg == "" {
			msg = bodySnippet(body)
		}
		return &Error{Kind: KindTransport, Op: op, Code: env.Code, Message: msg, StatusCode: status}
	}
	return nil
}

func classifyEnvelope(op string, status int, env envelope) error {
	code := strings.ToUpper(strings.TrimSpace(env.Code))
	newErr := func(kind Kind, msg string) error {
		e := &Error{Kind: kind, Op: op, Code: code, Message: msg}
		if status < 200 || status > 299 {
			e.StatusCode = status
		}
		return e
	}

	switch {
	case code == constants.BridgeCodeInvalidToken || code == constants.BridgeCodeInvalidID ||
		code == constants.BridgeCodeNotConnected || reInvalidSession.MatchString(env.Message):
		return newErr(KindInvalidSession, messageOr(env.Message, code))
	case code == constants.BridgeCodeInvalidAccount || reInvalidCredentials.MatchString(env.Message):
		return newErr(KindInvalidCredentials, constants.BridgeCodeMessage(constants.BridgeCodeInvalidAccount, "en"))
	case code == constants.BridgeCodeConnectError:
		return newErr(KindBridgeRejected, messageOr(env.Message, "Connection failed"))
	case code == constants.BridgeCodeDone && reServerFailure.MatchString(env.Message):
		return newErr(KindBridgeRejected, "MTAPI error: "+env.Message)
	case code != "" && code != constants.BridgeCodeDone && status >= 200 && status <= 299 && looksLikeFailure(code):
		return newErr(KindBridgeRejected, messageOr(env.Message, code))
	}
	return nil
}

func looksLikeFailure(code string) bool {
	return strings.Contains(code, "ERROR") || strings.Contains(code, "INVALID") || strings.Contains(code, "FAIL") ||
		code == constants.BridgeCodeTimeout
}

func messageOr(msg, code string) string {
	if strings.TrimSpace(msg) != "" {
		return msg
	}
	return constants.BridgeCodeMessage(code, "en")
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

// parseSessionID accepts a bare token, a JSON string or an object with id/token.
func parseSessionID(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", false
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '{':
		var obj struct {
			ID    json.RawMessage `json:"id"`
			Token json.RawMessage `json:"token"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return "", false
		}
		for _, raw := range []json.RawMessage{obj.ID, obj.Token} {
			if s := rawScalar(raw); s != "" {
				return s, true
			}
		}
		return "", false
	case '[':
		return "", false
	default:
		return string(trimmed), true
	}
}

// parseAlive normalizes the CheckConnect shapes. Anything unrecognized is a
// clean negative.
func parseAlive(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] == '{' {
		var obj struct {
			Connected bool `json:"connected"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return false
		}
		return obj.Connected
	}
	s := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return false
		}
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "ok", "connected":
		return true
	}
	return false
}

func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
