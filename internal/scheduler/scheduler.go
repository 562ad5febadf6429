// Package scheduler runs periodic background sweeps: refreshing upstream
// OAuth tokens before they expire, and pruning orphan voicemail rows well
// past the duplicate-guard window. Adapted from notification-service's
// CronScheduler — the same robfig/cron wrapper and Start/Stop shape,
// repurposed from publishing cron-tick events onto NATS to running the
// sweeps directly, since this broker's ticks drive store mutations rather
// than notifying other services.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/upstream"
)

// tokenExpiryWindow is how far ahead of actual expiry a binding is
// refreshed.
const tokenExpiryWindow = 2 * time.Hour

// orphanRetention is how long an orphan voicemail is kept before GC,
// well past the 60-second duplicate-guard window and long enough that
// any legitimate late cross-link attempt has already happened.
const orphanRetention = 30 * 24 * time.Hour

// CredentialsForEnvironment resolves the OAuth client id/secret pair to
// present for a binding's environment label (sandbox or production).
type CredentialsForEnvironment func(environment string) upstream.Credentials

// Scheduler wraps robfig/cron and drives the token-refresh and
// voicemail-GC sweeps on fixed ticks.
type Scheduler struct {
	cron   *cron.Cron
	q      db.Querier
	client *upstream.Client
	creds  CredentialsForEnvironment
	logger *zap.Logger
}

// New constructs a Scheduler. creds supplies the OAuth client credentials
// for a binding's environment label at refresh time.
func New(q db.Querier, client *upstream.Client, creds CredentialsForEnvironment, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		q:      q,
		client: client,
		creds:  creds,
		logger: logger,
	}
}

// Start registers the cron jobs and starts the scheduler. Call Stop to
// shut down gracefully.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@hourly", func() { s.refreshUpstreamTokens(context.Background()) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@hourly", func() { s.pruneOrphanVoicemails(context.Background()) }); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Duration("token_expiry_window", tokenExpiryWindow),
		zap.Duration("orphan_retention", orphanRetention),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for any in-flight job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// refreshUpstreamTokens refreshes every upstream binding whose access
// token is within tokenExpiryWindow of expiring. A single binding's
// refresh failure is logged and does not interrupt the sweep; the caller
// re-authorizes that tenant out of band.
func (s *Scheduler) refreshUpstreamTokens(ctx context.Context) {
	bindings, err := s.q.ListUpstreamBindingsNearingExpiry(ctx, tokenExpiryWindow)
	if err != nil {
		s.logger.Error("failed to list upstream bindings nearing expiry", zap.Error(err))
		return
	}
	if len(bindings) == 0 {
		return
	}

	for _, b := range bindings {
		refreshed, err := s.client.RefreshToken(ctx, s.creds(b.Environment), b.RefreshToken)
		if err != nil {
			s.logger.Warn("upstream token refresh failed",
				zap.String("app_id", b.AppID.String()),
				zap.String("environment", b.Environment),
				zap.Error(err),
			)
			continue
		}

		if err := s.q.UpdateUpstreamBindingTokens(ctx, db.UpdateUpstreamBindingTokensParams{
			AppID:          b.AppID,
			AccessToken:    refreshed.AccessToken,
			RefreshToken:   refreshed.RefreshToken,
			TokenExpiresAt: refreshed.ExpiresAt,
		}); err != nil {
			s.logger.Error("failed to persist refreshed upstream tokens",
				zap.String("app_id", b.AppID.String()),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("refreshed upstream token", zap.String("app_id", b.AppID.String()))
	}
}

// pruneOrphanVoicemails deletes orphan voicemail rows older than
// orphanRetention.
func (s *Scheduler) pruneOrphanVoicemails(ctx context.Context) {
	n, err := s.q.PruneOrphanVoicemails(ctx, orphanRetention)
	if err != nil {
		s.logger.Error("failed to prune orphan voicemails", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("pruned orphan voicemails", zap.Int64("count", n))
	}
}
