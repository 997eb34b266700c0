package service

import (
	"context"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/mtapi"
)

// Bridge is the subset of the MTAPI client the services depend on.
type Bridge interface {
	Connect(ctx context.Context, req mtapi.ConnectRequest) (string, error)
	CheckConnection(ctx context.Context, sessionID string, platform models.Platform) (bool, error)
	AccountSummary(ctx context.Context, sessionID string, platform models.Platform) (models.AccountSummary, error)
	OpenPositions(ctx context.Context, sessionID string, platform models.Platform) ([]models.Position, error)
	ClosedOrders(ctx context.Context, sessionID string, platform models.Platform) ([]models.Order, error)
	OrderHistory(ctx context.Context, sessionID string, platform models.Platform, from, to time.Time) ([]models.Order, error)
	Disconnect(ctx context.Context, sessionID string, platform models.Platform) error
}

var _ Bridge = (*mtapi.Client)(nil)

// StatusNotifier receives connection status changes. Implementations must
// not block.
type StatusNotifier interface {
	NotifyAccountStatus(event *models.AccountStatusEvent)
}

const EventAccountStatus = "account_status"

func statusEvent(account *models.TradingAccount, sessionChanged bool, err error) *models.AccountStatusEvent {
	event := &models.AccountStatusEvent{
		Type:           EventAccountStatus,
		UserID:         account.UserID.Hex(),
		AccountID:      account.ID.Hex(),
		AccountNumber:  account.AccountNumber,
		Status:         account.ConnectionStatus,
		SessionChanged: sessionChanged,
		Timestamp:      time.Now().UTC(),
	}
	if err != nil {
		event.Error = mtapi.Message(err)
	}
	return event
}
