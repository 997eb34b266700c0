package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/mtapi"
	"github.com/mehrbod2002/mtdesk/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeBridge struct {
	mu sync.Mutex

	alive      map[string]bool
	checkErr   error
	checkGate  chan struct{}
	connectIDs []string
	connectErr error

	summary    models.AccountSummary
	summaryErr error
	history    []models.Order
	historyErr error
	positions  []models.Position
	closed     []models.Order

	checks      int
	connects    int
	disconnects int
	connectReqs []mtapi.ConnectRequest
	historyFrom time.Time
	historyTo   time.Time
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{alive: map[string]bool{}}
}

func (b *fakeBridge) Connect(_ context.Context, req mtapi.ConnectRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	b.connectReqs = append(b.connectReqs, req)
	if b.connectErr != nil {
		return "", b.connectErr
	}
	id := fmt.Sprintf("session-%d", b.connects)
	if len(b.connectIDs) > 0 {
		id = b.connectIDs[0]
		b.connectIDs = b.connectIDs[1:]
	}
	b.alive[id] = true
	return id, nil
}

func (b *fakeBridge) CheckConnection(ctx context.Context, sessionID string, _ models.Platform) (bool, error) {
	b.mu.Lock()
	b.checks++
	gate := b.checkGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, &mtapi.Error{Kind: mtapi.KindTransport, Op: "check_connection", Err: ctx.Err()}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alive[sessionID] {
		return true, nil
	}
	return false, b.checkErr
}

func (b *fakeBridge) AccountSummary(context.Context, string, models.Platform) (models.AccountSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary, b.summaryErr
}

func (b *fakeBridge) OpenPositions(context.Context, string, models.Platform) ([]models.Position, error) {
	return b.positions, nil
}

func (b *fakeBridge) ClosedOrders(context.Context, string, models.Platform) ([]models.Order, error) {
	return b.closed, nil
}

func (b *fakeBridge) OrderHistory(_ context.Context, _ string, _ models.Platform, from, to time.Time) ([]models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historyFrom, b.historyTo = from, to
	return b.history, b.historyErr
}

func (b *fakeBridge) Disconnect(context.Context, string, models.Platform) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects++
	return nil
}

func (b *fakeBridge) counts() (checks, connects int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checks, b.connects
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[primitive.ObjectID]models.TradingAccount

	updateSessionErr error
	updateStatusErr  error
	updateSummaryErr error
	findErr          error

	summaryWrites int
	statusWrites  int
}

var _ repository.AccountRepository = (*fakeAccountRepo)(nil)

func newFakeAccountRepo(accounts ...*models.TradingAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: map[primitive.ObjectID]models.TradingAccount{}}
	for _, a := range accounts {
		r.accounts[a.ID] = *a
	}
	return r
}

func (r *fakeAccountRepo) get(id primitive.ObjectID) models.TradingAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id]
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.TradingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *fakeAccountRepo) FindByHandle(_ context.Context, sessionID string) (*models.TradingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.IsActive && a.BridgeSessionID == sessionID {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) FindActiveByUser(_ context.Context, userID primitive.ObjectID) ([]*models.TradingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.TradingAccount{}
	for _, a := range r.accounts {
		if a.IsActive && a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

func (r *fakeAccountRepo) FindActiveByUserAndNumber(_ context.Context, userID primitive.ObjectID, accountNumber string) (*models.TradingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.IsActive && a.UserID == userID && a.AccountNumber == accountNumber {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) Create(_ context.Context, account *models.TradingAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.IsActive && a.UserID == account.UserID && a.AccountNumber == account.AccountNumber {
			return repository.ErrDuplicateAccount
		}
	}
	if account.ID.IsZero() {
		account.ID = primitive.NewObjectID()
	}
	account.IsActive = true
	account.CreatedAt = time.Now().UTC()
	r.accounts[account.ID] = *account
	return nil
}

func (r *fakeAccountRepo) update(id primitive.ObjectID, fn func(a *models.TradingAccount)) error {
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&a)
	r.accounts[id] = a
	return nil
}

func (r *fakeAccountRepo) UpdateSession(_ context.Context, id primitive.ObjectID, sessionID string, status models.ConnectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateSessionErr != nil {
		return r.updateSessionErr
	}
	return r.update(id, func(a *models.TradingAccount) {
		a.BridgeSessionID = sessionID
		a.ConnectionStatus = status
	})
}

func (r *fakeAccountRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, status models.ConnectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusWrites++
	if r.updateStatusErr != nil {
		return r.updateStatusErr
	}
	return r.update(id, func(a *models.TradingAccount) { a.ConnectionStatus = status })
}

func (r *fakeAccountRepo) UpdateSummary(_ context.Context, id primitive.ObjectID, summary models.AccountSummary, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaryWrites++
	if r.updateSummaryErr != nil {
		return r.updateSummaryErr
	}
	return r.update(id, func(a *models.TradingAccount) {
		a.AccountSummary = summary
		a.LastSyncAt = &syncedAt
	})
}

func (r *fakeAccountRepo) Deactivate(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(id, func(a *models.TradingAccount) { a.IsActive = false })
}

func (r *fakeAccountRepo) EnsureIndexes(context.Context) error { return nil }

type fakeHistoryRepo struct {
	mu         sync.Mutex
	histories  map[primitive.ObjectID]*models.OrderHistory
	replaceErr error
}

var _ repository.HistoryRepository = (*fakeHistoryRepo)(nil)

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{histories: map[primitive.ObjectID]*models.OrderHistory{}}
}

func (r *fakeHistoryRepo) FindByAccount(_ context.Context, accountID primitive.ObjectID) (*models.OrderHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histories[accountID]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (r *fakeHistoryRepo) ReplaceHistory(_ context.Context, accountID primitive.ObjectID, orders []models.Order) (*models.OrderHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return nil, r.replaceErr
	}
	h := &models.OrderHistory{AccountID: accountID, Orders: models.DedupOrders(orders), Version: 1}
	if old, ok := r.histories[accountID]; ok {
		h.Version = old.Version + 1
	}
	r.histories[accountID] = h
	return h, nil
}

func (r *fakeHistoryRepo) AppendHistory(_ context.Context, accountID primitive.ObjectID, orders []models.Order) (*models.OrderHistory, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histories[accountID]
	if !ok {
		h = &models.OrderHistory{AccountID: accountID}
		r.histories[accountID] = h
	}
	merged, added := models.MergeOrders(h.Orders, orders)
	h.Orders = merged
	h.Version++
	return h, added, nil
}

func (r *fakeHistoryRepo) EnsureIndexes(context.Context) error { return nil }

func (r *fakeHistoryRepo) tickets(accountID primitive.ObjectID) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histories[accountID]
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(h.Orders))
	for _, o := range h.Orders {
		out = append(out, o.Ticket)
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*models.AccountStatusEvent
}

func (n *fakeNotifier) NotifyAccountStatus(event *models.AccountStatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) all() []*models.AccountStatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*models.AccountStatusEvent(nil), n.events...)
}

type fakeLogService struct {
	mu      sync.Mutex
	actions []string
}

func (l *fakeLogService) LogAction(_ context.Context, _, _ primitive.ObjectID, action, _, _ string, _ map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, action)
	return nil
}

func (l *fakeLogService) GetAllLogs(context.Context, int, int) ([]*models.LogEntry, error) {
	return nil, nil
}

func (l *fakeLogService) GetLogsByUserID(context.Context, string, int, int) ([]*models.LogEntry, error) {
	return nil, nil
}

func (l *fakeLogService) GetLogsByAccountID(context.Context, primitive.ObjectID, int, int) ([]*models.LogEntry, error) {
	return nil, nil
}

func (l *fakeLogService) recorded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.actions...)
}

func order(ticket int64, profit float64) models.Order {
	return models.Order{Ticket: ticket, Symbol: "EURUSD", Type: models.OrderTypeBuy, Profit: profit}
}

func testAccount(sessionID string) *models.TradingAccount {
	return &models.TradingAccount{
		ID:               primitive.NewObjectID(),
		UserID:           primitive.NewObjectID(),
		AccountNumber:    "70001",
		ServerName:       "Broker-Live",
		Platform:         models.PlatformMT4,
		Password:         "secret-pw",
		BridgeSessionID:  sessionID,
		ConnectionStatus: models.ConnectionStatusConnected,
		AccountSummary:   models.DefaultAccountSummary(),
		IsActive:         true,
	}
}
