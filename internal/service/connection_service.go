package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/mtapi"
	"github.com/mehrbod2002/mtdesk/internal/repository"
	"github.com/mehrbod2002/mtdesk/internal/secret"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// persistBudget covers the repository reads and writes of one ensure run.
const persistBudget = 10 * time.Second

var (
	ErrNeverConnected      = errors.New("account has never been connected to the bridge")
	ErrSessionNotPersisted = errors.New("new bridge session could not be saved")
)

type ConnectionResult struct {
	Connected      bool                    `json:"connected"`
	SessionID      string                  `json:"-"`
	SessionChanged bool                    `json:"session_changed"`
	Recovered      bool                    `json:"recovered"`
	Status         models.ConnectionStatus `json:"connection_status"`
}

type ConnectionManager interface {
	// EnsureConnection makes sure the account's bridge session is usable,
	// reconnecting with the stored credentials when it is not. The account is
	// updated in place with the resulting handle and status.
	EnsureConnection(ctx context.Context, account *models.TradingAccount) (ConnectionResult, error)
	ConnectNew(ctx context.Context, req mtapi.ConnectRequest) (string, error)
	// Disconnect closes the bridge session and only logs failures.
	Disconnect(ctx context.Context, account *models.TradingAccount)
}

type connectionManager struct {
	bridge   Bridge
	accounts repository.AccountRepository
	secrets  secret.Store
	logs     LogService
	notifier StatusNotifier
	flights  singleflight.Group
	// flightTimeout bounds a shared check and reconnect.
	flightTimeout time.Duration
}

// NewConnectionManager wires the manager. logs and notifier may be nil.
// bridgeTimeout is the per-call bridge timeout; zero means the client default.
func NewConnectionManager(bridge Bridge, accounts repository.AccountRepository, secrets secret.Store, logs LogService, notifier StatusNotifier, bridgeTimeout time.Duration) ConnectionManager {
	if bridgeTimeout <= 0 {
		bridgeTimeout = mtapi.DefaultTimeout
	}
	return &connectionManager{
		bridge:        bridge,
		accounts:      accounts,
		secrets:       secrets,
		logs:          logs,
		notifier:      notifier,
		flightTimeout: 2*bridgeTimeout + persistBudget,
	}
}

func (m *connectionManager) EnsureConnection(ctx context.Context, account *models.TradingAccount) (ConnectionResult, error) {
	if !account.HasSession() {
		m.setStatus(ctx, account, models.ConnectionStatusError, ErrNeverConnected)
		return ConnectionResult{Status: models.ConnectionStatusError}, ErrNeverConnected
	}

	// Concurrent calls for one account share a single check/reconnect. The
	// shared run is detached from any one caller so a hang-up cannot fail the
	// others; each caller stops waiting when its own context ends.
	snapshot := *account
	flight := m.flights.DoChan(account.ID.Hex(), func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.flightTimeout)
		defer cancel()
		res, err := m.ensure(flightCtx, &snapshot)
		return res, err
	})

	var (
		res ConnectionResult
		err error
	)
	select {
	case <-ctx.Done():
		return ConnectionResult{SessionID: account.BridgeSessionID, Status: account.ConnectionStatus}, ctx.Err()
	case out := <-flight:
		res, err = out.Val.(ConnectionResult), out.Err
		if out.Shared {
			logger.WithField("account_id", account.ID.Hex()).Debug("joined in-flight connection check")
		}
	}

	if res.SessionID != "" {
		account.BridgeSessionID = res.SessionID
	}
	account.ConnectionStatus = res.Status
	return res, err
}

func (m *connectionManager) ensure(ctx context.Context, account *models.TradingAccount) (ConnectionResult, error) {
	log := logger.WithFields(logger.Fields{
		"component":      "connection",
		"account_id":     account.ID.Hex(),
		"account_number": account.AccountNumber,
		"platform":       account.Platform,
	})

	// Another request may have reconnected since the caller loaded the account.
	if fresh, err := m.accounts.FindByID(ctx, account.ID); err != nil {
		log.WithError(err).Warn("failed to reload account, using caller copy")
	} else if fresh != nil && fresh.HasSession() {
		*account = *fresh
	}

	alive, checkErr := m.bridge.CheckConnection(ctx, account.BridgeSessionID, account.Platform)
	if checkErr == nil && alive {
		m.setStatus(ctx, account, models.ConnectionStatusConnected, nil)
		return ConnectionResult{
			Connected: true,
			SessionID: account.BridgeSessionID,
			Status:    models.ConnectionStatusConnected,
		}, nil
	}

	cleanNegative := checkErr == nil || errors.Is(checkErr, mtapi.ErrInvalidSession)
	log.WithField("check_error", mtapi.Message(checkErr)).Info("bridge session is stale, reconnecting")

	previous := account.BridgeSessionID
	sessionID, err := m.reconnect(ctx, account)
	if err != nil {
		status := models.ConnectionStatusError
		if cleanNegative {
			status = models.ConnectionStatusDisconnected
		}
		log.WithError(err).WithField("status", status).Warn("reconnect failed")
		m.setStatus(ctx, account, status, err)
		return ConnectionResult{SessionID: previous, Status: status}, fmt.Errorf("reconnect failed: %w", err)
	}

	account.BridgeSessionID = sessionID
	account.ConnectionStatus = models.ConnectionStatusConnected
	res := ConnectionResult{
		Connected:      true,
		SessionID:      sessionID,
		SessionChanged: sessionID != previous,
		Recovered:      true,
		Status:         models.ConnectionStatusConnected,
	}

	if err := m.accounts.UpdateSession(ctx, account.ID, sessionID, models.ConnectionStatusConnected); err != nil {
		log.WithError(err).Error("failed to persist new bridge session")
		return res, fmt.Errorf("%w: %v", ErrSessionNotPersisted, err)
	}

	log.WithField("session_changed", res.SessionChanged).Info("bridge session recovered")
	m.notify(account, res.SessionChanged, nil)
	m.audit(ctx, account, models.ActionAccountReconnected, "Bridge session re-established")
	return res, nil
}

func (m *connectionManager) reconnect(ctx context.Context, account *models.TradingAccount) (string, error) {
	password, err := m.secrets.Open(account.Password)
	if err != nil {
		return "", fmt.Errorf("failed to open stored credentials: %w", err)
	}
	return m.bridge.Connect(ctx, mtapi.ConnectRequest{
		AccountNumber: account.AccountNumber,
		Password:      password,
		Server:        account.ServerName,
		Platform:      account.Platform,
	})
}

// setStatus is best effort: a failed write is logged and never turns into a
// connection failure.
func (m *connectionManager) setStatus(ctx context.Context, account *models.TradingAccount, status models.ConnectionStatus, cause error) {
	changed := account.ConnectionStatus != status
	account.ConnectionStatus = status
	if account.ID.IsZero() {
		return
	}
	if err := m.accounts.UpdateStatus(ctx, account.ID, status); err != nil {
		logger.WithFields(logger.Fields{
			"account_id": account.ID.Hex(),
			"status":     status,
		}).WithError(err).Warn("failed to persist connection status")
	}
	if changed {
		m.notify(account, false, cause)
	}
}

func (m *connectionManager) notify(account *models.TradingAccount, sessionChanged bool, cause error) {
	if m.notifier == nil {
		return
	}
	m.notifier.NotifyAccountStatus(statusEvent(account, sessionChanged, cause))
}

func (m *connectionManager) audit(ctx context.Context, account *models.TradingAccount, action, description string) {
	if m.logs == nil {
		return
	}
	metadata := map[string]interface{}{
		"account_number": account.AccountNumber,
		"platform":       account.Platform,
	}
	if err := m.logs.LogAction(ctx, account.UserID, account.ID, action, description, "", metadata); err != nil {
		logger.WithError(err).Warn("failed to write audit log")
	}
}

func (m *connectionManager) ConnectNew(ctx context.Context, req mtapi.ConnectRequest) (string, error) {
	sessionID, err := m.bridge.Connect(ctx, req)
	if err != nil {
		logger.WithFields(logger.Fields{
			"component":      "connection",
			"account_number": req.AccountNumber,
			"platform":       req.Platform,
			"kind":           mtapi.KindOf(err).String(),
		}).Info("initial connect rejected")
		return "", err
	}
	return sessionID, nil
}

func (m *connectionManager) Disconnect(ctx context.Context, account *models.TradingAccount) {
	if !account.HasSession() {
		return
	}
	if err := m.bridge.Disconnect(ctx, account.BridgeSessionID, account.Platform); err != nil {
		logger.WithFields(logger.Fields{
			"account_id": account.ID.Hex(),
			"platform":   account.Platform,
		}).WithError(err).Warn("bridge disconnect failed")
	}
}
