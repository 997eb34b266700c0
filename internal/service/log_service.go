package service

import (
	"context"

	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LogService interface {
	LogAction(ctx context.Context, userID, accountID primitive.ObjectID, action, description, ipAddress string, metadata map[string]interface{}) error
	GetAllLogs(ctx context.Context, page, limit int) ([]*models.LogEntry, error)
	GetLogsByUserID(ctx context.Context, userID string, page, limit int) ([]*models.LogEntry, error)
	GetLogsByAccountID(ctx context.Context, accountID primitive.ObjectID, page, limit int) ([]*models.LogEntry, error)
}

type logService struct {
	logRepo repository.LogRepository
}

func NewLogService(logRepo repository.LogRepository) LogService {
	return &logService{logRepo: logRepo}
}

func (s *logService) LogAction(ctx context.Context, userID, accountID primitive.ObjectID, action, description, ipAddress string, metadata map[string]interface{}) error {
	logEntry := &models.LogEntry{
		UserID:      userID,
		AccountID:   accountID,
		Action:      action,
		Description: description,
		IPAddress:   ipAddress,
		Metadata:    metadata,
	}
	return s.logRepo.SaveLog(ctx, logEntry)
}

func (s *logService) GetAllLogs(ctx context.Context, page, limit int) ([]*models.LogEntry, error) {
	return s.logRepo.FindLogs(ctx, repository.LogFilter{}, page, limit)
}

func (s *logService) GetLogsByUserID(ctx context.Context, userID string, page, limit int) ([]*models.LogEntry, error) {
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, err
	}
	return s.logRepo.FindLogs(ctx, repository.LogFilter{UserID: objID}, page, limit)
}

func (s *logService) GetLogsByAccountID(ctx context.Context, accountID primitive.ObjectID, page, limit int) ([]*models.LogEntry, error) {
	return s.logRepo.FindLogs(ctx, repository.LogFilter{AccountID: accountID}, page, limit)
}
