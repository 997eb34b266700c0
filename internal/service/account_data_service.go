package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/mtapi"
	"github.com/mehrbod2002/mtdesk/internal/repository"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var historyEpoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

type SummaryResult struct {
	Summary   models.AccountSummary `json:"summary"`
	Refreshed bool                  `json:"refreshed"`
	SyncedAt  *time.Time            `json:"last_sync_at,omitempty"`
	Error     string                `json:"error,omitempty"`
}

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type HistoryTotals struct {
	Trades     int             `json:"trades"`
	Profit     decimal.Decimal `json:"profit"`
	Commission decimal.Decimal `json:"commission"`
	Swap       decimal.Decimal `json:"swap"`
	Net        decimal.Decimal `json:"net"`
}

type HistoryResult struct {
	Orders    []models.Order `json:"orders"`
	DateRange DateRange      `json:"date_range"`
	Replaced  bool           `json:"replaced"`
	Added     int            `json:"added"`
	Totals    HistoryTotals  `json:"totals"`
}

type SyncResult struct {
	SummarySucceeded bool           `json:"summary_succeeded"`
	HistorySucceeded bool           `json:"history_succeeded"`
	Summary          SummaryResult  `json:"summary"`
	History          *HistoryResult `json:"history,omitempty"`
	HistoryError     string         `json:"history_error,omitempty"`
}

// AccountDataService pulls data through an already ensured session and
// stores it.
type AccountDataService interface {
	// RefreshSummary never fails; on bridge errors it returns the cached summary.
	RefreshSummary(ctx context.Context, account *models.TradingAccount) SummaryResult
	// FetchOrderHistory appends to the stored history for a bounded window and
	// replaces it when windowDays is nil.
	FetchOrderHistory(ctx context.Context, account *models.TradingAccount, windowDays *int) (*HistoryResult, error)
	SyncHistory(ctx context.Context, account *models.TradingAccount, windowDays int) (*HistoryResult, error)
	SyncAll(ctx context.Context, account *models.TradingAccount) SyncResult
	OpenPositions(ctx context.Context, account *models.TradingAccount) ([]models.Position, error)
	ClosedOrders(ctx context.Context, account *models.TradingAccount) ([]models.Order, error)
}

type accountDataService struct {
	bridge   Bridge
	accounts repository.AccountRepository
	history  repository.HistoryRepository
	logs     LogService
	now      func() time.Time
}

func NewAccountDataService(bridge Bridge, accounts repository.AccountRepository, history repository.HistoryRepository, logs LogService) AccountDataService {
	return &accountDataService{
		bridge:   bridge,
		accounts: accounts,
		history:  history,
		logs:     logs,
		now:      time.Now,
	}
}

func (s *accountDataService) RefreshSummary(ctx context.Context, account *models.TradingAccount) SummaryResult {
	log := logger.WithFields(logger.Fields{
		"component":  "sync",
		"account_id": account.ID.Hex(),
		"platform":   account.Platform,
	})

	summary, err := s.bridge.AccountSummary(ctx, account.BridgeSessionID, account.Platform)
	if err != nil {
		log.WithError(err).Warn("summary refresh failed, serving cached summary")
		return SummaryResult{
			Summary:  account.AccountSummary,
			SyncedAt: account.LastSyncAt,
			Error:    mtapi.Message(err),
		}
	}

	now := s.now().UTC()
	account.AccountSummary = summary
	account.LastSyncAt = &now
	res := SummaryResult{Summary: summary, Refreshed: true, SyncedAt: &now}
	if err := s.accounts.UpdateSummary(ctx, account.ID, summary, now); err != nil {
		log.WithError(err).Error("failed to persist account summary")
		res.Error = "summary fetched but not saved"
	}
	return res
}

func (s *accountDataService) FetchOrderHistory(ctx context.Context, account *models.TradingAccount, windowDays *int) (*HistoryResult, error) {
	to := s.now().UTC()
	from := historyEpoch
	if windowDays != nil {
		if *windowDays <= 0 {
			return nil, fmt.Errorf("%w: window must be at least one day", ErrValidation)
		}
		from = to.AddDate(0, 0, -*windowDays)
	}

	orders, err := s.bridge.OrderHistory(ctx, account.BridgeSessionID, account.Platform, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order history: %w", err)
	}

	res := &HistoryResult{
		Orders:    models.DedupOrders(orders),
		DateRange: DateRange{From: from, To: to},
	}
	res.Totals = computeTotals(res.Orders)
	if windowDays == nil {
		if _, err := s.history.ReplaceHistory(ctx, account.ID, orders); err != nil {
			return nil, fmt.Errorf("failed to store order history: %w", err)
		}
		res.Replaced = true
		res.Added = len(res.Orders)
	} else {
		_, added, err := s.history.AppendHistory(ctx, account.ID, orders)
		if err != nil {
			return nil, fmt.Errorf("failed to store order history: %w", err)
		}
		res.Added = added
	}

	logger.WithFields(logger.Fields{
		"component":  "sync",
		"account_id": account.ID.Hex(),
		"fetched":    len(orders),
		"added":      res.Added,
		"replaced":   res.Replaced,
	}).Debug("order history stored")
	return res, nil
}

// SyncHistory loads the full history the first time an account is synced and
// only the recent window afterwards. The result is limited to the window.
func (s *accountDataService) SyncHistory(ctx context.Context, account *models.TradingAccount, windowDays int) (*HistoryResult, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("%w: window must be at least one day", ErrValidation)
	}
	existing, err := s.history.FindByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order history: %w", err)
	}
	if existing != nil {
		return s.FetchOrderHistory(ctx, account, &windowDays)
	}

	res, err := s.FetchOrderHistory(ctx, account, nil)
	if err != nil {
		return nil, err
	}
	res.DateRange.From = res.DateRange.To.AddDate(0, 0, -windowDays)
	res.Orders = ordersClosedSince(res.Orders, res.DateRange.From)
	res.Totals = computeTotals(res.Orders)
	return res, nil
}

// SyncAll refreshes the summary and the full history side by side. Neither
// half can cancel or fail the other.
func (s *accountDataService) SyncAll(ctx context.Context, account *models.TradingAccount) SyncResult {
	var (
		res        SyncResult
		summary    SummaryResult
		history    *HistoryResult
		historyErr error
	)
	// the summary half works on its own copy
	summaryCopy := *account

	var g errgroup.Group
	g.Go(func() error {
		summary = s.RefreshSummary(ctx, &summaryCopy)
		return nil
	})
	g.Go(func() error {
		history, historyErr = s.FetchOrderHistory(ctx, account, nil)
		return nil
	})
	_ = g.Wait()

	account.AccountSummary = summaryCopy.AccountSummary
	account.LastSyncAt = summaryCopy.LastSyncAt

	res.Summary = summary
	res.SummarySucceeded = summary.Refreshed
	if historyErr != nil {
		res.HistoryError = mtapi.Message(historyErr)
	} else {
		res.History = history
		res.HistorySucceeded = true
		s.audit(ctx, account, history)
	}
	return res
}

func (s *accountDataService) audit(ctx context.Context, account *models.TradingAccount, history *HistoryResult) {
	if s.logs == nil {
		return
	}
	metadata := map[string]interface{}{
		"orders":   len(history.Orders),
		"replaced": history.Replaced,
	}
	if err := s.logs.LogAction(ctx, account.UserID, account.ID, models.ActionHistorySynced, "Order history synchronized", "", metadata); err != nil {
		logger.WithError(err).Warn("failed to write audit log")
	}
}

func (s *accountDataService) OpenPositions(ctx context.Context, account *models.TradingAccount) ([]models.Position, error) {
	positions, err := s.bridge.OpenPositions(ctx, account.BridgeSessionID, account.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open positions: %w", err)
	}
	return positions, nil
}

func (s *accountDataService) ClosedOrders(ctx context.Context, account *models.TradingAccount) ([]models.Order, error) {
	orders, err := s.bridge.ClosedOrders(ctx, account.BridgeSessionID, account.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch closed orders: %w", err)
	}
	return orders, nil
}

// computeTotals sums money fields in decimal. Balance operations are not
// counted as trades.
func computeTotals(orders []models.Order) HistoryTotals {
	totals := HistoryTotals{
		Profit:     decimal.Zero,
		Commission: decimal.Zero,
		Swap:       decimal.Zero,
	}
	for _, o := range orders {
		if o.Type == models.OrderTypeBalance {
			continue
		}
		totals.Trades++
		totals.Profit = totals.Profit.Add(decimal.NewFromFloat(o.Profit))
		totals.Commission = totals.Commission.Add(decimal.NewFromFloat(o.Commission))
		totals.Swap = totals.Swap.Add(decimal.NewFromFloat(o.Swap))
	}
	totals.Net = totals.Profit.Add(totals.Commission).Add(totals.Swap)
	return totals
}

// ordersClosedSince keeps orders closed at or after since and orders without
// a close time.
func ordersClosedSince(orders []models.Order, since time.Time) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.CloseTime == nil || !o.CloseTime.Before(since) {
			out = append(out, o)
		}
	}
	return out
}
