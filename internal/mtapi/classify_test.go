package mtapi

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeResponse(status int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: status}}
}

func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: errors.New("boom"), want: true},
		{name: "server error", resp: fakeResponse(502), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "ok", resp: fakeResponse(200), want: false},
		{name: "bad request", resp: fakeResponse(400), want: false},
		{name: "nil resp", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryableResp(tc.resp, tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   Kind
		target error
	}{
		{name: "plain token", status: 200, body: `abc-123`},
		{name: "summary payload", status: 200, body: `{"balance":10}`},
		{name: "connect error", status: 200, body: `{"code":"CONNECT_ERROR","message":"no route"}`, kind: KindBridgeRejected, target: ErrBridgeRejected},
		{name: "invalid account code", status: 200, body: `{"code":"INVALID_ACCOUNT"}`, kind: KindInvalidCredentials, target: ErrInvalidCredentials},
		{name: "invalid password message", status: 200, body: `{"code":"","message":"Invalid password for login"}`, kind: KindInvalidCredentials, target: ErrInvalidCredentials},
		{name: "done with server failure", status: 200, body: `{"code":"DONE","message":"Server not found"}`, kind: KindBridgeRejected, target: ErrBridgeRejected},
		{name: "done without failure", status: 200, body: `{"code":"DONE","message":"ok"}`},
		{name: "invalid token", status: 200, body: `{"code":"INVALID_TOKEN","message":"Invalid token"}`, kind: KindInvalidSession, target: ErrInvalidSession},
		{name: "session message on 400", status: 400, body: `{"message":"Not connected"}`, kind: KindInvalidSession, target: ErrInvalidSession},
		{name: "http 500", status: 500, body: `upstream exploded`, kind: KindTransport, target: ErrTransport},
		{name: "unknown failure code", status: 200, body: `{"code":"TRADE_FAILED"}`, kind: KindBridgeRejected, target: ErrBridgeRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("op", tc.status, []byte(tc.body))
			if tc.kind == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			assert.True(t, errors.Is(err, tc.target))
		})
	}
}

func TestClassifyKeepsStatusCode(t *testing.T) {
	err := classify("summary", 503, []byte("unavailable"))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 503, e.StatusCode)
	assert.Equal(t, "unavailable", e.Message)
	assert.Contains(t, e.Error(), "HTTP 503")
}

func TestDoneServerFailureMessage(t *testing.T) {
	err := classify("connect", 200, []byte(`{"code":"DONE","message":"Invalid server"}`))
	assert.Equal(t, "MTAPI error: Invalid server", Message(err))
}

func TestParseSessionID(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{body: "  tok-1\n", want: "tok-1", ok: true},
		{body: `"tok-2"`, want: "tok-2", ok: true},
		{body: `{"id":"tok-3"}`, want: "tok-3", ok: true},
		{body: `{"token":42}`, want: "42", ok: true},
		{body: `{"other":1}`},
		{body: `[]`},
		{body: ``},
		{body: `""`},
	}
	for _, tc := range cases {
		got, ok := parseSessionID([]byte(tc.body))
		assert.Equal(t, tc.ok, ok, tc.body)
		assert.Equal(t, tc.want, got, tc.body)
	}
}

func TestParseAlive(t *testing.T) {
	for _, body := range []string{`true`, `"OK"`, `Connected`, `{"connected":true}`, `ok`} {
		assert.True(t, parseAlive([]byte(body)), body)
	}
	for _, body := range []string{`false`, `""`, `{"connected":false}`, `nope`, ``, `[]`} {
		assert.False(t, parseAlive([]byte(body)), body)
	}
}

func TestDecodeOrdersShapes(t *testing.T) {
	bare := `[{"ticket":"9007199254740993","symbol":"EURUSD","orderType":"Buy","lots":0.1,"profit":"12.5","closeTime":"2024-03-01T10:00:00"}]`
	wrapped := `{"orders":[{"ticket":7,"symbol":"XAUUSD","type":"Sell","volume":2,"openTime":"1970-01-01T00:00:00"}]}`

	orders, err := decodeOrders([]byte(bare))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(9007199254740993), orders[0].Ticket)
	assert.Equal(t, "buy", string(orders[0].Type))
	assert.Equal(t, 0.1, orders[0].Volume)
	assert.Equal(t, 12.5, orders[0].Profit)
	require.NotNil(t, orders[0].CloseTime)
	assert.Equal(t, 2024, orders[0].CloseTime.Year())
	assert.Equal(t, "EURUSD", orders[0].Raw["symbol"])

	orders, err = decodeOrders([]byte(wrapped))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "sell", string(orders[0].Type))
	assert.Equal(t, 2.0, orders[0].Lots)
	assert.Nil(t, orders[0].OpenTime)

	orders, err = decodeOrders([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMergeSummaryDefaults(t *testing.T) {
	s := mergeSummary(summaryWire{Balance: 100, FreeMarginSnake: 80}, accountWire{})
	assert.Equal(t, "USD", s.Currency)
	assert.Equal(t, 100, s.Leverage)
	assert.Equal(t, 80.0, s.FreeMargin)

	s = mergeSummary(summaryWire{Currency: "EUR", Leverage: 500, Type: "Demo"}, accountWire{Type: "Real", UserName: " Jane "})
	assert.Equal(t, "EUR", s.Currency)
	assert.Equal(t, 500, s.Leverage)
	assert.Equal(t, "Real", s.AccountType)
	assert.Equal(t, "Jane", s.RemoteUserName)
}
