// Package notify holds the outbound collaborator interfaces. Failures from
// these collaborators are logged by callers and never fail a workflow
// transition.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"mutaline/internal/domain"
	"mutaline/internal/repo"
)

type Notifier interface {
	Notify(ctx context.Context, userID, titre, message string, demandeID *string) error
}

type Mailer interface {
	SendConfirmation(ctx context.Context, email, demandeID string) error
	SendDecisionDocuments(ctx context.Context, email, demandeID, decision string) error
}

// StoreNotifier persists notifications for in-app delivery.
type StoreNotifier struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (n StoreNotifier) Notify(ctx context.Context, userID, titre, message string, demandeID *string) error {
	now := n.Now
	if now == nil {
		now = time.Now
	}
	return n.Repo.InsertNotification(ctx, domain.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Titre:     titre,
		Message:   message,
		DemandeID: demandeID,
		CreatedAt: now().UTC().Format(time.RFC3339),
	})
}

// LogMailer writes outbound mail to the log instead of an SMTP relay.
type LogMailer struct {
	Log *log.Logger
}

func (m LogMailer) logf(format string, args ...any) {
	if m.Log != nil {
		m.Log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (m LogMailer) SendConfirmation(ctx context.Context, email, demandeID string) error {
	m.logf("mail: confirmation to %s for demande %s", email, demandeID)
	return nil
}

func (m LogMailer) SendDecisionDocuments(ctx context.Context, email, demandeID, decision string) error {
	m.logf("mail: decision %s documents to %s for demande %s", decision, email, demandeID)
	return nil
}
