package cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ZoneSweeper deletes expired zones and returns their ids.
type ZoneSweeper interface {
	DeleteExpired(ctx context.Context) ([]string, error)
}

// ShoutSweeper deletes expired shouts.
type ShoutSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// FeedSweeper removes the feed attached to a deleted zone.
type FeedSweeper interface {
	DeleteFeed(ctx context.Context, feedID string) error
}

// ConversationSweeper removes the conversations attached to a deleted zone.
type ConversationSweeper interface {
	DeleteForZone(ctx context.Context, zoneID string) ([]string, error)
}

// Service physically deletes rows whose logical TTL has passed. Readers
// already filter expired documents, so this pass only reclaims storage and
// its cadence is not correctness sensitive.
type Service struct {
	zones    ZoneSweeper
	shouts   ShoutSweeper
	feeds    FeedSweeper
	convos   ConversationSweeper
	notify   func(subject string)
	schedule string
	cron     *cron.Cron
	log      *logrus.Entry
}

// NewService creates a cleanup service with a cron schedule expression.
func NewService(
	zones ZoneSweeper,
	shouts ShoutSweeper,
	feeds FeedSweeper,
	convos ConversationSweeper,
	notify func(subject string),
	schedule string,
	log *logrus.Entry,
) *Service {
	return &Service{
		zones:    zones,
		shouts:   shouts,
		feeds:    feeds,
		convos:   convos,
		notify:   notify,
		schedule: schedule,
		log:      log,
	}
}

// Start registers the sweep with the scheduler and starts it.
func (s *Service) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one cleanup pass. Each resource is swept independently so a
// failure in one never blocks the others.
func (s *Service) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if n, err := s.shouts.DeleteExpired(ctx); err != nil {
		s.log.WithError(err).Warn("error sweeping shouts")
	} else if n > 0 {
		s.log.WithField("count", n).Info("swept expired shouts")
		s.notify("geo.shouts.changed")
	}

	zoneIDs, err := s.zones.DeleteExpired(ctx)
	if err != nil {
		s.log.WithError(err).Warn("error sweeping zones")
		return
	}
	if len(zoneIDs) == 0 {
		return
	}

	for _, zoneID := range zoneIDs {
		if err := s.feeds.DeleteFeed(ctx, zoneID); err != nil {
			s.log.WithError(err).WithField("zone", zoneID).Warn("error sweeping zone feed")
		}
		if _, err := s.convos.DeleteForZone(ctx, zoneID); err != nil {
			s.log.WithError(err).WithField("zone", zoneID).Warn("error sweeping zone conversations")
		}
	}

	s.log.WithField("count", len(zoneIDs)).Info("swept expired zones")
	s.notify("geo.zones.changed")
}
