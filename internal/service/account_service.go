package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/mtapi"
	"github.com/mehrbod2002/mtdesk/internal/repository"
	"github.com/mehrbod2002/mtdesk/internal/secret"
	logger "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHistoryWindowDays = 30
	listConcurrency          = 8
)

var (
	ErrAccountNotFound = errors.New("trading account not found")
	ErrAccountExists   = errors.New("this trading account is already added")
	ErrValidation      = errors.New("invalid request")
)

// ConnectionError reports a failed EnsureConnection together with the last
// known account state so callers can serve cached data.
type ConnectionError struct {
	Account *models.TradingAccount
	Result  ConnectionResult
	Err     error
}

func (e *ConnectionError) Error() string { return e.Err.Error() }

func (e *ConnectionError) Unwrap() error { return e.Err }

type AddAccountRequest struct {
	AccountNumber string          `json:"accountNumber" binding:"required"`
	ServerName    string          `json:"serverName" binding:"required"`
	Platform      models.Platform `json:"platform" binding:"required"`
	Password      string          `json:"password" binding:"required"`
}

type AccountView struct {
	Account    *models.TradingAccount `json:"account"`
	Connection *ConnectionResult      `json:"connection,omitempty"`
	Summary    *SummaryResult         `json:"summary,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

type AccountManager struct {
	accounts          repository.AccountRepository
	connections       ConnectionManager
	data              AccountDataService
	secrets           secret.Store
	logs              LogService
	historyWindowDays int
}

func NewAccountManager(accounts repository.AccountRepository, connections ConnectionManager, data AccountDataService, secrets secret.Store, logs LogService, historyWindowDays int) *AccountManager {
	if historyWindowDays <= 0 {
		historyWindowDays = DefaultHistoryWindowDays
	}
	return &AccountManager{
		accounts:          accounts,
		connections:       connections,
		data:              data,
		secrets:           secrets,
		logs:              logs,
		historyWindowDays: historyWindowDays,
	}
}

func parseUserID(userID string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid user id", ErrValidation)
	}
	return id, nil
}

func (s *AccountManager) load(ctx context.Context, userID, accountNumber string) (*models.TradingAccount, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindActiveByUserAndNumber(ctx, uid, strings.TrimSpace(accountNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to load trading account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// connected loads the account and ensures its bridge session.
func (s *AccountManager) connected(ctx context.Context, userID, accountNumber string) (*models.TradingAccount, ConnectionResult, error) {
	account, err := s.load(ctx, userID, accountNumber)
	if err != nil {
		return nil, ConnectionResult{}, err
	}
	res, err := s.connections.EnsureConnection(ctx, account)
	if err != nil {
		return account, res, &ConnectionError{Account: account, Result: res, Err: err}
	}
	return account, res, nil
}

func (s *AccountManager) AddAccount(ctx context.Context, userID string, req AddAccountRequest, clientIP string) (*AccountView, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.ServerName = strings.TrimSpace(req.ServerName)
	if req.AccountNumber == "" || req.ServerName == "" || req.Password == "" || req.Platform == "" {
		return nil, fmt.Errorf("%w: all fields are required: accountNumber, serverName, platform, password", ErrValidation)
	}
	if !req.Platform.Valid() {
		return nil, fmt.Errorf("%w: platform must be MT4 or MT5", ErrValidation)
	}

	existing, err := s.accounts.FindActiveByUserAndNumber(ctx, uid, req.AccountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing accounts: %w", err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	sessionID, err := s.connections.ConnectNew(ctx, mtapi.ConnectRequest{
		AccountNumber: req.AccountNumber,
		Password:      req.Password,
		Server:        req.ServerName,
		Platform:      req.Platform,
	})
	if err != nil {
		return nil, err
	}

	sealed, err := s.secrets.Seal(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credentials: %w", err)
	}
	account := &models.TradingAccount{
		UserID:           uid,
		AccountNumber:    req.AccountNumber,
		ServerName:       req.ServerName,
		Platform:         req.Platform,
		Password:         sealed,
		BridgeSessionID:  sessionID,
		ConnectionStatus: models.ConnectionStatusConnected,
		AccountSummary:   models.DefaultAccountSummary(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		s.connections.Disconnect(ctx, account)
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, ErrAccountExists
		}
		return nil, err
	}

	summary := s.data.RefreshSummary(ctx, account)
	s.audit(ctx, account, models.ActionAccountAdded, "Trading account added", clientIP)
	return &AccountView{Account: account, Summary: &summary}, nil
}

// ListAccounts returns the user's active accounts. With live set every
// account is ensured in parallel and then re-read so handles changed during
// the check are reflected.
func (s *AccountManager) ListAccounts(ctx context.Context, userID string, live bool) ([]AccountView, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.accounts.FindActiveByUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list trading accounts: %w", err)
	}

	views := make([]AccountView, len(accounts))
	for i, account := range accounts {
		views[i].Account = account
	}
	if !live {
		return views, nil
	}

	var g errgroup.Group
	g.SetLimit(listConcurrency)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			res, err := s.connections.EnsureConnection(ctx, account)
			views[i].Connection = &res
			if err != nil {
				views[i].Error = mtapi.Message(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, account := range accounts {
		fresh, err := s.accounts.FindByID(ctx, account.ID)
		if err != nil {
			logger.WithField("account_id", account.ID.Hex()).WithError(err).Warn("failed to re-read account after status check")
			continue
		}
		if fresh != nil {
			views[i].Account = fresh
		}
	}
	return views, nil
}

// GetAccount ensures the session and refreshes the summary. On connection
// failure the returned *ConnectionError carries the cached account.
func (s *AccountManager) GetAccount(ctx context.Context, userID, accountNumber string) (*AccountView, error) {
	account, res, err := s.connected(ctx, userID, accountNumber)
	if err != nil {
		return nil, err
	}
	summary := s.data.RefreshSummary(ctx, account)
	return &AccountView{Account: account, Connection: &res, Summary: &summary}, nil
}

func (s *AccountManager) OpenPositions(ctx context.Context, userID, accountNumber string) ([]models.Position, error) {
	account, _, err := s.connected(ctx, userID, accountNumber)
	if err != nil {
		return nil, err
	}
	return s.data.OpenPositions(ctx, account)
}

func (s *AccountManager) ClosedOrders(ctx context.Context, userID, accountNumber string) ([]models.Order, error) {
	account, _, err := s.connected(ctx, userID, accountNumber)
	if err != nil {
		return nil, err
	}
	return s.data.ClosedOrders(ctx, account)
}

// OrderHistory syncs and returns the last days of history. days <= 0 uses
// the configured window.
func (s *AccountManager) OrderHistory(ctx context.Context, userID, accountNumber string, days int) (*HistoryResult, error) {
	if days <= 0 {
		days = s.historyWindowDays
	}
	account, _, err := s.connected(ctx, userID, accountNumber)
	if err != nil {
		return nil, err
	}
	return s.data.SyncHistory(ctx, account, days)
}

func (s *AccountManager) Sync(ctx context.Context, userID, accountNumber string) (*SyncResult, error) {
	account, _, err := s.connected(ctx, userID, accountNumber)
	if err != nil {
		return nil, err
	}
	res := s.data.SyncAll(ctx, account)
	return &res, nil
}

func (s *AccountManager) ConnectionStatus(ctx context.Context, userID, accountNumber string) (*AccountView, error) {
	account, res, err := s.connected(ctx, userID, accountNumber)
	if err != nil {
		return nil, err
	}
	return &AccountView{Account: account, Connection: &res}, nil
}

// DeleteAccount closes the bridge session when possible and soft deletes the
// account. Stored history is kept.
func (s *AccountManager) DeleteAccount(ctx context.Context, userID, accountNumber, clientIP string) error {
	account, err := s.load(ctx, userID, accountNumber)
	if err != nil {
		return err
	}
	s.connections.Disconnect(ctx, account)
	if err := s.accounts.Deactivate(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to delete trading account: %w", err)
	}
	account.IsActive = false
	s.audit(ctx, account, models.ActionAccountDeleted, "Trading account removed", clientIP)
	return nil
}

func (s *AccountManager) audit(ctx context.Context, account *models.TradingAccount, action, description, clientIP string) {
	if s.logs == nil {
		return
	}
	metadata := map[string]interface{}{
		"account_number": account.AccountNumber,
		"platform":       account.Platform,
		"server_name":    account.ServerName,
	}
	if err := s.logs.LogAction(ctx, account.UserID, account.ID, action, description, clientIP, metadata); err != nil {
		logger.WithError(err).Warn("failed to write audit log")
	}
}
