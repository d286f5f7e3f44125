package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

type StatisticsInput struct {
	ProviderID *uuid.UUID
	SeekerID   *uuid.UUID
	From       *time.Time
	To         *time.Time
}

type Statistics struct {
	Total    int
	ByStatus map[domain.Status]int
	// Upcoming counts occupying appointments that have not started yet.
	Upcoming int
}

func (s *Service) GetStatistics(ctx context.Context, in StatisticsInput) (stats Statistics, err error) {
	defer s.observe(ctx, "get_statistics", time.Now(), &err)

	if in.From != nil && in.To != nil && !in.To.After(*in.From) {
		return Statistics{}, invalidArgument("to must be after from")
	}
	f := store.StatsFilter{
		ProviderID: in.ProviderID,
		SeekerID:   in.SeekerID,
		From:       utcPtr(in.From),
		To:         utcPtr(in.To),
	}
	counts, err := s.repo.CountByStatus(ctx, f)
	if err != nil {
		return Statistics{}, classify(err)
	}

	stats.ByStatus = make(map[domain.Status]int, len(domain.AllStatuses()))
	for _, st := range domain.AllStatuses() {
		stats.ByStatus[st] = 0
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] += c.Count
		stats.Total += c.Count
	}

	now := s.now().UTC()
	if f.To != nil && !f.To.After(now) {
		return stats, nil
	}
	upcoming := f
	if upcoming.From == nil || upcoming.From.Before(now) {
		upcoming.From = &now
	}
	future, err := s.repo.CountByStatus(ctx, upcoming)
	if err != nil {
		return Statistics{}, classify(err)
	}
	for _, c := range future {
		if c.Status.Occupying() {
			stats.Upcoming += c.Count
		}
	}
	return stats, nil
}
