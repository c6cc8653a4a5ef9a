package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/queue"
)

// UserFinder resolves recipients.
type UserFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Enqueuer hands rendered emails to the worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Dispatcher turns domain events into queued emails. Failures are logged, never returned.
type Dispatcher struct {
	users   UserFinder
	queue   Enqueuer
	siteURL string
	logger  *zap.Logger
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(users UserFinder, q Enqueuer, siteURL string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{users: users, queue: q, siteURL: strings.TrimRight(siteURL, "/"), logger: logger}
}

var missionStatusLabels = map[models.MissionStatus]string{
	models.MissionProposed:       "proposée",
	models.MissionValidated:      "validée",
	models.MissionPendingPayment: "en attente de paiement",
	models.MissionPaid:           "payée",
	models.MissionCompleted:      "terminée",
	models.MissionRefused:        "refusée",
	models.MissionRealized:       "réalisée",
}

// MissionProposed tells the company owner about a new mission.
func (d *Dispatcher) MissionProposed(ctx context.Context, m *models.Mission, co *models.Company) {
	d.send(ctx, co, co.OwnerID, models.EmailTypeMissionProposed, Message{
		Subject:     "Nouvelle mission proposée : " + m.Title,
		Heading:     "Une nouvelle mission vous attend",
		Lines:       []string{fmt.Sprintf("Un client propose la mission « %s » à %s.", m.Title, co.Name)},
		ActionURL:   d.siteURL + "/dashboard/" + co.Slug + "/missions/" + m.ID.String(),
		ActionLabel: "Voir la mission",
	})
}

// MissionStatusChanged tells the party that did not make the change.
func (d *Dispatcher) MissionStatusChanged(ctx context.Context, m *models.Mission, co *models.Company, changedBy string) {
	label := missionStatusLabels[m.Status]
	if label == "" {
		label = string(m.Status)
	}
	msg := Message{
		Subject: fmt.Sprintf("Mission « %s » %s", m.Title, label),
		Heading: "Mise à jour de mission",
		Lines:   []string{fmt.Sprintf("La mission « %s » est maintenant %s.", m.Title, label)},
	}
	recipient := co.OwnerID
	if changedBy == "company" {
		recipient = m.ClientID
		msg.ActionURL = d.siteURL + "/missions/" + m.ID.String()
	} else {
		msg.ActionURL = d.siteURL + "/dashboard/" + co.Slug + "/missions/" + m.ID.String()
	}
	msg.ActionLabel = "Voir la mission"
	d.send(ctx, co, recipient, models.EmailTypeMissionStatusChanged, msg)
}

// InvoiceSent tells the billed client.
func (d *Dispatcher) InvoiceSent(ctx context.Context, inv *models.Invoice, co *models.Company) {
	if inv.ClientID == nil {
		return
	}
	d.send(ctx, co, *inv.ClientID, models.EmailTypeInvoiceSent, Message{
		Subject: fmt.Sprintf("Facture %s de %s", inv.Number, co.Name),
		Heading: "Vous avez reçu une facture",
		Lines: []string{
			fmt.Sprintf("%s vous a adressé la facture %s (%s).", co.Name, inv.Number, inv.Label),
			"Montant TTC : " + euros(inv.AmountTTCCents),
		},
		ActionURL:   d.siteURL + "/factures/" + inv.ID.String(),
		ActionLabel: "Consulter la facture",
	})
}

// InvoicePaid tells the company owner.
func (d *Dispatcher) InvoicePaid(ctx context.Context, inv *models.Invoice, co *models.Company) {
	d.send(ctx, co, co.OwnerID, models.EmailTypeInvoicePaid, Message{
		Subject:     fmt.Sprintf("Facture %s payée", inv.Number),
		Heading:     "Paiement reçu",
		Lines:       []string{fmt.Sprintf("La facture %s de %s a été réglée.", inv.Number, euros(inv.AmountTTCCents))},
		ActionURL:   d.siteURL + "/dashboard/" + co.Slug + "/factures",
		ActionLabel: "Voir mes factures",
	})
}

// SubscriptionChanged tells the owner that the subscription became active, past due or canceled.
func (d *Dispatcher) SubscriptionChanged(ctx context.Context, co *models.Company, status string) {
	url := d.siteURL + "/dashboard/" + co.Slug + "/abonnement"
	var (
		kind string
		msg  Message
	)
	switch status {
	case "active", "trialing":
		kind = models.EmailTypeSubscriptionActivated
		msg = Message{
			Subject: "Votre abonnement ExtraBeam est actif",
			Heading: "Bienvenue sur ExtraBeam",
			Lines:   []string{fmt.Sprintf("Le profil %s est désormais visible dans l'annuaire.", co.Name)},
		}
	case "past_due":
		kind = models.EmailTypeSubscriptionPastDue
		msg = Message{
			Subject: "Paiement de votre abonnement en échec",
			Heading: "Un paiement a échoué",
			Lines:   []string{"Mettez à jour votre moyen de paiement pour garder votre profil visible."},
		}
	case "canceled":
		kind = models.EmailTypeSubscriptionCanceled
		msg = Message{
			Subject: "Votre abonnement ExtraBeam est résilié",
			Heading: "Abonnement résilié",
			Lines:   []string{fmt.Sprintf("Le profil %s n'apparaît plus dans l'annuaire.", co.Name)},
		}
	default:
		return
	}
	msg.ActionURL, msg.ActionLabel = url, "Gérer mon abonnement"
	d.send(ctx, co, co.OwnerID, kind, msg)
}

func (d *Dispatcher) send(ctx context.Context, co *models.Company, recipient uuid.UUID, kind string, msg Message) {
	log := d.logger.With(zap.String("email_type", kind), zap.String("company_id", co.ID.String()))
	u, err := d.users.GetByID(ctx, recipient)
	if err != nil {
		log.Warn("notification recipient lookup failed", zap.String("user_id", recipient.String()), zap.Error(err))
		return
	}
	body, err := Render(msg)
	if err != nil {
		log.Error("notification render failed", zap.Error(err))
		return
	}
	companyID := co.ID
	err = d.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      kind,
		CompanyID:      &companyID,
		RecipientEmail: u.Email,
		Subject:        msg.Subject,
		BodyHTML:       body,
	})
	if err != nil {
		log.Error("notification enqueue failed", zap.Error(err))
		return
	}
	log.Debug("notification queued")
}
