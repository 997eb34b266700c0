package constants

// Response codes the MTAPI bridge embeds in otherwise successful bodies.
const (
	BridgeCodeDone           = "DONE"
	BridgeCodeConnectError   = "CONNECT_ERROR"
	BridgeCodeInvalidAccount = "INVALID_ACCOUNT"
	BridgeCodeInvalidToken   = "INVALID_TOKEN"
	BridgeCodeInvalidID      = "INVALID_ID"
	BridgeCodeNotConnected   = "NOT_CONNECTED"
	BridgeCodeTimeout        = "TIMEOUT"
)

var BridgeCodes = map[string]map[string]string{
	BridgeCodeDone: {
		"en": "Request completed",
	},
	BridgeCodeConnectError: {
		"en": "Connection to the trade server failed",
	},
	BridgeCodeInvalidAccount: {
		"en": "Invalid account credentials. Please check your login and password.",
	},
	BridgeCodeInvalidToken: {
		"en": "Bridge session is no longer valid",
	},
	BridgeCodeInvalidID: {
		"en": "Bridge session is no longer valid",
	},
	BridgeCodeNotConnected: {
		"en": "Account is not connected to the trade server",
	},
	BridgeCodeTimeout: {
		"en": "Trade server did not answer in time",
	},
}

// BridgeCodeMessage falls back to the code itself for codes we do not know.
func BridgeCodeMessage(code, lang string) string {
	if msgs, ok := BridgeCodes[code]; ok {
		if msg, ok := msgs[lang]; ok {
			return msg
		}
		return msgs["en"]
	}
	return code
}
