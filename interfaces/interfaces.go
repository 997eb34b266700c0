package interfaces

import (
	"context"

	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/service"
)

// AccountService is what the HTTP layer needs from the account core.
type AccountService interface {
	AddAccount(ctx context.Context, userID string, req service.AddAccountRequest, clientIP string) (*service.AccountView, error)
	ListAccounts(ctx context.Context, userID string, live bool) ([]service.AccountView, error)
	GetAccount(ctx context.Context, userID, accountNumber string) (*service.AccountView, error)
	OpenPositions(ctx context.Context, userID, accountNumber string) ([]models.Position, error)
	ClosedOrders(ctx context.Context, userID, accountNumber string) ([]models.Order, error)
	OrderHistory(ctx context.Context, userID, accountNumber string, days int) (*service.HistoryResult, error)
	Sync(ctx context.Context, userID, accountNumber string) (*service.SyncResult, error)
	ConnectionStatus(ctx context.Context, userID, accountNumber string) (*service.AccountView, error)
	DeleteAccount(ctx context.Context, userID, accountNumber, clientIP string) error
}

var _ AccountService = (*service.AccountManager)(nil)

// AccountStatusBroadcaster pushes connection status events to subscribers.
type AccountStatusBroadcaster interface {
	service.StatusNotifier
	ClientCount() int
}
