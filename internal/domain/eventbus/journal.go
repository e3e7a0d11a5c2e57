package eventbus

import (
	"context"
	"fmt"
	"time"

	"eduverse-client-go/internal/domain/auth"
	"eduverse-client-go/internal/domain/eventbus/repository"
	"eduverse-client-go/internal/domain/mint"
	"eduverse-client-go/internal/domain/wallet"
)

const journalTimeout = 10 * time.Second

// Journal persists every published event so a later run can show what
// happened to a mint record.
type Journal struct {
	repo   repository.EventRepository
	logger Logger
	now    func() time.Time
}

func NewJournal(repo repository.EventRepository, logger Logger) *Journal {
	return &Journal{repo: repo, logger: logger, now: time.Now}
}

// Attach subscribes the journal to every client topic. Entries are written
// inside Publish so they keep publish order across topics.
func (j *Journal) Attach(b *Bus) error {
	for _, topic := range Topics {
		topic := topic
		if err := b.Subscribe(topic, func(payload any) {
			j.Record(topic, payload)
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// Record stores one event. Failures are logged, never returned to the publisher.
func (j *Journal) Record(topic string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	event := Normalize(topic, payload)
	event.CreatedAt = j.now()
	if err := j.repo.Store(ctx, event); err != nil && j.logger != nil {
		j.logger.Warn("journal %s: %v", topic, err)
	}
}

// History returns the journaled events about one subject.
func (j *Journal) History(ctx context.Context, subject string) ([]repository.Event, error) {
	return j.repo.FindBySubject(ctx, subject)
}

// Normalize flattens a payload into a journal entry. Credentials are dropped.
func Normalize(topic string, payload any) repository.Event {
	ev := repository.Event{Topic: topic, Data: map[string]any{}}

	switch p := payload.(type) {
	case nil:
	case auth.Outcome:
		if p.Identity != nil {
			ev.UserID = p.Identity.ID
			ev.Data["username"] = p.Identity.Username
		}
		ev.Data["identityRefreshed"] = p.IdentityRefreshed
	case *auth.Identity:
		if p != nil {
			ev.UserID = p.ID
			ev.Data["username"] = p.Username
		}
	case mint.PhaseEvent:
		ev.Subject = p.RecordID
		ev.Data["phase"] = string(p.Phase)
		if p.Ledger != nil {
			ev.Data["tokenId"] = p.Ledger.TokenID
			ev.Data["txHash"] = p.Ledger.TxHash
		}
	case mint.FailureEvent:
		ev.Subject = p.RecordID
		ev.Data["step"] = string(p.Step)
		ev.Data["action"] = string(p.Action)
		ev.Data["error"] = p.Error
		if p.Ledger != nil {
			ev.Data["tokenId"] = p.Ledger.TokenID
			ev.Data["txHash"] = p.Ledger.TxHash
		}
	case string:
		if topic == wallet.TopicState {
			ev.Data["state"] = p
		} else {
			ev.Data["value"] = p
		}
	case error:
		ev.Data["error"] = p.Error()
	default:
		ev.Data["value"] = fmt.Sprint(p)
	}
	return ev
}
