package line

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/store"
)

// NotifyStore is the template and recipient lookup the notifier needs.
type NotifyStore interface {
	TemplateByTrigger(ctx context.Context, trigger string) (*store.MessageTemplate, error)
	AdminsWithLineID(ctx context.Context) ([]store.User, error)
}

// Pusher delivers a push message to one LINE user.
type Pusher interface {
	Push(ctx context.Context, to string, texts ...string) error
}

// Notifier sends order-status notifications to every active admin with a
// linked LINE account plus the order's dealer, rendered from the stored
// template for the triggering status change.
type Notifier struct {
	store  NotifyStore
	sender Pusher
	log    zerolog.Logger
}

func NewNotifier(s NotifyStore, sender Pusher) *Notifier {
	return &Notifier{store: s, sender: sender, log: logger.Component("line.notify")}
}

// NotifyOrder renders and pushes the template bound to trigger. A missing
// template or an empty recipient list is not an error; a failed push to one
// recipient does not stop delivery to the others.
func (n *Notifier) NotifyOrder(ctx context.Context, trigger string, order *store.Order) error {
	tmpl, err := n.store.TemplateByTrigger(ctx, trigger)
	if errors.Is(err, store.ErrNotFound) {
		n.log.Warn().Str("trigger", trigger).Msg("no message template for trigger")
		return nil
	}
	if err != nil {
		return err
	}

	recipients, err := n.recipients(ctx, order)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		n.log.Warn().Str("order_number", order.Number).Msg("no notification recipients")
		return nil
	}

	text := renderTemplate(tmpl.Content, order)
	for _, to := range recipients {
		if err := n.sender.Push(ctx, to, text); err != nil {
			n.log.Error().Err(err).Str("recipient", to).Str("trigger", trigger).Msg("notification push failed")
			continue
		}
		n.log.Info().Str("recipient", to).Str("trigger", trigger).Msg("notification sent")
	}
	return nil
}

// recipients returns admin LINE ids plus the dealer's, deduplicated in
// order.
func (n *Notifier) recipients(ctx context.Context, order *store.Order) ([]string, error) {
	admins, err := n.store.AdminsWithLineID(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, a := range admins {
		add(a.LineID)
	}
	add(order.Dealer.LineID)
	return ids, nil
}

// renderTemplate substitutes the order's values for the {placeholder}
// variables a template may carry.
func renderTemplate(content string, order *store.Order) string {
	items := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		unit := item.Unit
		if unit == "" {
			unit = "件"
		}
		items = append(items, item.Name+" x "+strconv.Itoa(item.Quantity)+unit)
	}

	return strings.NewReplacer(
		"{orderNumber}", order.Number,
		"{dealerName}", order.Dealer.ContactName,
		"{companyName}", order.Dealer.CompanyName,
		"{totalAmount}", strconv.FormatFloat(order.TotalAmount, 'f', -1, 64),
		"{status}", store.StatusText(order.Status),
		"{createdAt}", order.CreatedAt.Format("2006/01/02"),
		"{items}", strings.Join(items, "\n"),
	).Replace(content)
}
