package app

import (
	"context"
	"fmt"
	"time"

	"compliance_notifier/internal/catalog"
	"compliance_notifier/internal/domain/obligation"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// AdminService exposes operator actions to the admin bot.
type AdminService struct {
	notifService    NotificationService
	catalog         *catalog.Catalog
	adminTelegramID int64
	now             func() time.Time
}

func NewAdminService(ns NotificationService, cat *catalog.Catalog, adminID int64) *AdminService {
	return &AdminService{
		notifService:    ns,
		catalog:         cat,
		adminTelegramID: adminID,
		now:             time.Now,
	}
}

// RunCycle triggers an evaluation cycle now. force bypasses the hour gate.
func (s *AdminService) RunCycle(ctx context.Context, performingAdminID int64, force bool) (Summary, error) {
	if performingAdminID != s.adminTelegramID {
		return Summary{}, ErrAdminNotAuthorized
	}
	return s.notifService.RunEvaluationCycle(ctx, s.now(), CycleOptions{IgnoreHourGate: force})
}

// Upcoming lists a subject's deadlines as of now.
func (s *AdminService) Upcoming(ctx context.Context, performingAdminID int64, subjectID string) ([]UpcomingDeadline, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	return s.notifService.Upcoming(ctx, subjectID, s.now())
}

// Rules returns the catalog.
func (s *AdminService) Rules(performingAdminID int64) ([]obligation.Rule, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	return s.catalog.ListAll(), nil
}
