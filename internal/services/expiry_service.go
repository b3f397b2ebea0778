package services

import (
	"context"
	"log"
	"time"

	"github.com/kavishkanimsara/HustleHut-sub000/internal/repository"
	"github.com/kavishkanimsara/HustleHut-sub000/pkg/timeslot"
)

// ExpiryService cancels pending sessions whose date passed without a
// completed payment. It backs the scheduled sweep registered in cmd/server.
type ExpiryService struct {
	sessionRepo *repository.SessionRepository
}

func NewExpiryService(sessionRepo *repository.SessionRepository) *ExpiryService {
	return &ExpiryService{sessionRepo: sessionRepo}
}

func (s *ExpiryService) ExpireStale(ctx context.Context) (int64, error) {
	expired, err := s.sessionRepo.ExpirePending(ctx, timeslot.DateOf(time.Now().UTC()))
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		log.Printf("expired %d unpaid pending sessions", expired)
	}
	return expired, nil
}
