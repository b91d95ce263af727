package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/models"
)

// Sender sends outreach mail to records with a real address that were not contacted yet
type Sender struct {
	config    common.MailConfig
	transport interfaces.MailTransport
	composer  *Composer
	logger    arbor.ILogger
	sleep     common.SleepFunc
	draw      common.DurationFunc
}

var _ interfaces.OutreachSender = (*Sender)(nil)

// NewSender creates a sender. A nil transport is only accepted for dry runs.
func NewSender(config common.MailConfig, transport interfaces.MailTransport, logger arbor.ILogger) (*Sender, error) {
	if transport == nil && !config.DryRun {
		return nil, fmt.Errorf("%w: no transport for a live send", ErrMissingCredentials)
	}
	composer, err := NewComposer(config)
	if err != nil {
		return nil, err
	}
	return &Sender{
		config:    config,
		transport: transport,
		composer:  composer,
		logger:    logger,
		sleep:     common.Sleep,
		draw:      common.RandomDuration,
	}, nil
}

// SendPending mails every eligible record, flipping contacted to yes and
// persisting the store after each successful send. A failed send is logged and
// the record stays eligible for the next run.
func (s *Sender) SendPending(ctx context.Context, store interfaces.RecordStore) (int, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}

	targets := s.selectTargets(records)
	if len(targets) == 0 {
		s.logger.Info().Msg("No eligible schools to contact")
		return 0, nil
	}

	s.logger.Info().
		Int("eligible", len(targets)).
		Int("limit", s.config.Limit).
		Bool("dry_run", s.config.DryRun).
		Msg("Sending outreach emails")

	sent := 0
	failed := 0
	for i, idx := range targets {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		record := records[idx]
		message, err := s.composer.Compose(record)
		if err != nil {
			s.logger.Error().Err(err).Str("name", record.Name).Msg("Failed to compose email")
			failed++
			continue
		}

		if s.config.DryRun {
			s.logger.Info().
				Str("name", record.Name).
				Str("email", record.Email).
				Int("bytes", len(message)).
				Msg("Dry run, email not sent")
			sent++
			continue
		}

		if err := s.transport.Send(ctx, s.composer.From(), []string{record.Email}, message); err != nil {
			s.logger.Error().Err(err).Str("name", record.Name).Str("email", record.Email).Msg("Failed to send email")
			failed++
			continue
		}

		records[idx].Contacted = models.ContactStatusYes
		sent++
		s.logger.Info().Str("name", record.Name).Str("email", record.Email).Msg("Email sent")

		if err := store.Save(ctx, records); err != nil {
			return sent, fmt.Errorf("failed to persist contact status: %w", err)
		}

		if i < len(targets)-1 {
			delay := s.draw(s.config.DelayMin, s.config.DelayMax)
			s.logger.Debug().Dur("delay", delay).Msg("Waiting before next email")
			if err := s.sleep(ctx, delay); err != nil {
				return sent, err
			}
		}
	}

	s.logger.Info().Int("sent", sent).Int("failed", failed).Msg("Outreach finished")
	return sent, nil
}

// selectTargets returns indexes of ready records in store order. With a limit,
// preferred records (school domains or school keywords) fill the quota first.
func (s *Sender) selectTargets(records []models.Record) []int {
	var ready []int
	for i, r := range records {
		if r.ReadyToContact() {
			ready = append(ready, i)
		}
	}

	limit := s.config.Limit
	if limit <= 0 || limit >= len(ready) {
		return ready
	}

	targets := make([]int, 0, limit)
	var rest []int
	for _, idx := range ready {
		if s.isPreferred(records[idx]) && len(targets) < limit {
			targets = append(targets, idx)
		} else {
			rest = append(rest, idx)
		}
	}
	for _, idx := range rest {
		if len(targets) >= limit {
			break
		}
		targets = append(targets, idx)
	}
	return targets
}

func (s *Sender) isPreferred(r models.Record) bool {
	email := strings.ToLower(r.Email)
	for _, domain := range s.config.PreferredDomains {
		if strings.Contains(email, strings.ToLower(domain)) {
			return true
		}
	}
	name := strings.ToLower(r.Name)
	for _, keyword := range s.config.PreferredKeywords {
		if strings.Contains(name, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
