package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/repository"
)

// SweepJob periodically folds implicit TTL expiry into stored state: every
// expired non-terminal session is marked cancelled and an ended event goes to
// its feed. Readers still enforce expiresAt themselves; the sweeper only
// keeps the store and stragglers that missed a feed event from drifting.
type SweepJob struct {
	sessionRepo repository.SessionRepository
	publisher   feed.Publisher
	interval    time.Duration
	done        chan struct{}
}

func NewSweepJob(sessionRepo repository.SessionRepository, publisher feed.Publisher, interval time.Duration) *SweepJob {
	return &SweepJob{
		sessionRepo: sessionRepo,
		publisher:   publisher,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := j.sessionRepo.SweepExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired sessions")
		return
	}
	if len(ids) == 0 {
		return
	}

	log.Info().Int("count", len(ids)).Msg("swept expired sessions")

	for _, id := range ids {
		if err := j.publisher.Publish(ctx, id, feed.EndedEvent(id, "expired")); err != nil {
			log.Error().Err(err).Str("sessionId", id).Msg("failed to publish expiry event")
		}
	}
}
