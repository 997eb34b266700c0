package mtapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mehrbod2002/mtdesk/internal/models"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMT4URL  = "https://mt4full3.mtapi.io"
	DefaultMT5URL  = "https://mt5full3.mtapi.io"
	DefaultTimeout = 30 * time.Second

	bridgeTimeLayout = "2006-01-02T15:04:05"

	retryWait    = 500 * time.Millisecond
	retryMaxWait = 3 * time.Second
)

type Config struct {
	Token      string
	MT4URL     string
	MT5URL     string
	Timeout    time.Duration
	RetryCount int
}

type ConnectRequest struct {
	AccountNumber string
	Password      string
	Server        string
	Platform      models.Platform
}

// Client talks to the MTAPI bridge. The base URL is picked from the account
// platform alone; nothing else influences routing.
type Client struct {
	endpoints map[models.Platform]*endpoint
}

type endpoint struct {
	baseURL string
	reads   *resty.Client
	// connect never retries: every attempt must carry a fresh correlation id.
	connect *resty.Client
}

func NewClient(cfg Config) *Client {
	if cfg.MT4URL == "" {
		cfg.MT4URL = DefaultMT4URL
	}
	if cfg.MT5URL == "" {
		cfg.MT5URL = DefaultMT5URL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Token == "" {
		logger.Warn("MTAPI token is empty; bridge calls will be rejected")
	}

	return &Client{
		endpoints: map[models.Platform]*endpoint{
			models.PlatformMT4: newEndpoint(cfg.MT4URL, cfg),
			models.PlatformMT5: newEndpoint(cfg.MT5URL, cfg),
		},
	}
}

func newEndpoint(baseURL string, cfg Config) *endpoint {
	base := func() *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("ApiKey", cfg.Token).
			SetHeader("Accept", "text/plain")
	}

	reads := base()
	if cfg.RetryCount > 0 {
		reads.SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(retryWait).
			SetRetryMaxWaitTime(retryMaxWait).
			AddRetryCondition(isRetryableResp)
	}

	return &endpoint{
		baseURL: baseURL,
		reads:   reads,
		connect: base().SetHeader("Accept", "application/json"),
	}
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

// BaseURL reports the endpoint used for a platform.
func (c *Client) BaseURL(platform models.Platform) string {
	if ep, ok := c.endpoints[platform]; ok {
		return ep.baseURL
	}
	return ""
}

func (c *Client) endpoint(op string, platform models.Platform) (*endpoint, error) {
	ep, ok := c.endpoints[platform]
	if !ok {
		return nil, &Error{Kind: KindBridgeRejected, Op: op, Message: "unsupported platform " + strconv.Quote(string(platform))}
	}
	return ep, nil
}

func (c *Client) do(ctx context.Context, rc *resty.Client, op, path string, platform models.Platform, params map[string]string) ([]byte, error) {
	resp, err := rc.R().SetContext(ctx).SetQueryParams(params).Get(path)
	if err != nil {
		logger.WithFields(logger.Fields{
			"component": "mtapi",
			"op":        op,
			"platform":  platform,
		}).WithError(err).Warn("bridge request failed")
		return nil, &Error{Kind: KindTransport, Op: op, Message: err.Error(), Err: err}
	}

	body := resp.Body()
	if err := classify(op, resp.StatusCode(), body); err != nil {
		logger.WithFields(logger.Fields{
			"component": "mtapi",
			"op":        op,
			"platform":  platform,
			"status":    resp.StatusCode(),
			"kind":      KindOf(err).String(),
		}).Debug("bridge returned failure")
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, op, path string, platform models.Platform, params map[string]string) ([]byte, error) {
	ep, err := c.endpoint(op, platform)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, ep.reads, op, path, platform, params)
}

func newRequestID() string {
	return strconv.FormatUint(rand.Uint64(), 10)
}

// Connect opens a bridge session and returns its handle.
func (c *Client) Connect(ctx context.Context, req ConnectRequest) (string, error) {
	const op = "connect"
	ep, err := c.endpoint(op, req.Platform)
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, ep.connect, op, "/ConnectEx", req.Platform, map[string]string{
		"user":     req.AccountNumber,
		"password": req.Password,
		"server":   req.Server,
		"id":       newRequestID(),
	})
	if err != nil {
		// a fresh connect has no session to invalidate
		var e *Error
		if errors.As(err, &e) && e.Kind == KindInvalidSession {
			e.Kind = KindBridgeRejected
		}
		return "", err
	}

	sessionID, ok := parseSessionID(body)
	if !ok {
		return "", &Error{Kind: KindBridgeRejected, Op: op, Message: "unexpected connect response: " + bodySnippet(body)}
	}
	return sessionID, nil
}

// CheckConnection reports whether the session is alive. A dead handle is
// reported as ErrInvalidSession rather than false.
func (c *Client) CheckConnection(ctx context.Context, sessionID string, platform models.Platform) (bool, error) {
	body, err := c.get(ctx, "check_connection", "/CheckConnect", platform, map[string]string{"id": sessionID})
	if err != nil {
		return false, err
	}
	return parseAlive(body), nil
}

// AccountSummary fetches the numeric summary and the account identity in
// parallel and merges them.
func (c *Client) AccountSummary(ctx context.Context, sessionID string, platform models.Platform) (models.AccountSummary, error) {
	const op = "account_summary"
	var (
		summary summaryWire
		account accountWire
	)
	params := map[string]string{"id": sessionID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := c.get(gctx, op, "/AccountSummary", platform, params)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &summary); err != nil {
			return &Error{Kind: KindBridgeRejected, Op: op, Message: "malformed summary: " + err.Error(), Err: err}
		}
		return nil
	})
	g.Go(func() error {
		body, err := c.get(gctx, op, "/Account", platform, params)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &account); err != nil {
			return &Error{Kind: KindBridgeRejected, Op: op, Message: "malformed account: " + err.Error(), Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.AccountSummary{}, err
	}
	return mergeSummary(summary, account), nil
}

func (c *Client) OpenPositions(ctx context.Context, sessionID string, platform models.Platform) ([]models.Position, error) {
	const op = "open_positions"
	body, err := c.get(ctx, op, "/OpenedOrders", platform, map[string]string{"id": sessionID})
	if err != nil {
		return nil, err
	}
	positions, err := decodePositions(body)
	if err != nil {
		return nil, &Error{Kind: KindBridgeRejected, Op: op, Message: "malformed positions: " + err.Error(), Err: err}
	}
	return positions, nil
}

func (c *Client) ClosedOrders(ctx context.Context, sessionID string, platform models.Platform) ([]models.Order, error) {
	const op = "closed_orders"
	body, err := c.get(ctx, op, "/ClosedOrders", platform, map[string]string{"id": sessionID})
	if err != nil {
		return nil, err
	}
	orders, err := decodeOrders(body)
	if err != nil {
		return nil, &Error{Kind: KindBridgeRejected, Op: op, Message: "malformed orders: " + err.Error(), Err: err}
	}
	return orders, nil
}

// OrderHistory returns deals closed in [from, to], newest first.
func (c *Client) OrderHistory(ctx context.Context, sessionID string, platform models.Platform, from, to time.Time) ([]models.Order, error) {
	const op = "order_history"
	body, err := c.get(ctx, op, "/OrderHistory", platform, map[string]string{
		"id":        sessionID,
		"from":      FormatBridgeTime(from),
		"to":        FormatBridgeTime(to),
		"sort":      "CloseTime",
		"ascending": "false",
	})
	if err != nil {
		return nil, err
	}
	orders, err := decodeOrders(body)
	if err != nil {
		return nil, &Error{Kind: KindBridgeRejected, Op: op, Message: "malformed history: " + err.Error(), Err: err}
	}
	return orders, nil
}

// Disconnect closes the bridge session. Callers treat failures as non-fatal.
func (c *Client) Disconnect(ctx context.Context, sessionID string, platform models.Platform) error {
	_, err := c.get(ctx, "disconnect", "/Disconnect", platform, map[string]string{"id": sessionID})
	return err
}

func FormatBridgeTime(t time.Time) string {
	return t.UTC().Format(bridgeTimeLayout)
}
