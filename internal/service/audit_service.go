package service

import (
	"context"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"
)

// AuditStore persists audit rows.
type AuditStore interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// AuditService records every committed session event. It is an EventSink.
type AuditService struct {
	repo AuditStore
}

func NewAuditService(repo AuditStore) *AuditService {
	return &AuditService{repo: repo}
}

// Log creates a new audit log entry. Failures are logged, never returned.
func (s *AuditService) Log(ctx context.Context, actor, sessionID, action, category string, details map[string]interface{}) {
	log := &domain.AuditLog{
		Actor:     actor,
		SessionID: sessionID,
		Action:    action,
		Category:  category,
		Details:   details,
	}

	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", action, "session_id", sessionID)
	}
}

func (s *AuditService) Publish(ctx context.Context, e domain.Event) {
	details := make(map[string]interface{}, len(e.Data)+2)
	for k, v := range e.Data {
		details[k] = v
	}
	details["state"] = e.State
	if e.Amount != 0 {
		details["amount"] = e.Amount
	}
	s.Log(ctx, e.Address, e.SessionID, string(e.Kind), domain.AuditCategoryFor(e.Kind), details)
}

// LogDeposit records an operator credit.
func (s *AuditService) LogDeposit(ctx context.Context, account string, amount int64, reference string) {
	s.Log(ctx, account, "", "deposit", domain.AuditCategoryBalance, map[string]interface{}{
		"amount":    amount,
		"reference": reference,
	})
}
