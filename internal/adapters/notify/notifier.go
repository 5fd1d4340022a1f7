// Package notify delivers assignment notices to brokers and clients.
// Delivery is best-effort: failures are logged and counted, never returned
// to the routing pass.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/pkg/logger"
)

// Template ids understood by the delivery transport.
const (
	TemplateBrokerInformational = "novo-lead-corretor-imovel-fk"
	TemplateBrokerAcceptance    = "novo-lead-corretor"
	TemplateClientAssigned      = "corretor-atribuido-cliente"
	TemplateBrokerLeadLost      = "lead-perdido-corretor"
)

// Notifier sends the three notices an assignment can produce.
type Notifier interface {
	NotifyBroker(ctx context.Context, e model.AssignmentEvent) error
	NotifyClient(ctx context.Context, e model.AssignmentEvent) error
	NotifyPreviousBroker(ctx context.Context, e model.AssignmentEvent) error
}

// Message is a rendered notice. Body formatting belongs to the transport.
type Message struct {
	Template string
	To       string
	Name     string
	Data     map[string]string
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, m Message) error
}

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct {
	logger logger.Logger
}

// NewLogTransport builds a LogTransport. A nil logger uses the global one.
func NewLogTransport(l logger.Logger) *LogTransport {
	if l == nil {
		l = logger.Get().Named("notify")
	}
	return &LogTransport{logger: l}
}

// Deliver logs m.
func (t *LogTransport) Deliver(ctx context.Context, m Message) error {
	t.logger.Info(ctx, "notification",
		logger.String("template", m.Template),
		logger.String("to", m.To),
		logger.Any("data", m.Data),
	)
	return nil
}

// MessageNotifier renders notices and hands them to a Transport.
type MessageNotifier struct {
	transport Transport
	baseURL   string
	brokers   BrokerLookup
}

// BrokerLookup resolves a broker for the lead-lost notice.
type BrokerLookup interface {
	Broker(ctx context.Context, brokerID string) (model.Broker, error)
}

// New builds a MessageNotifier over transport.
func New(transport Transport, brokers BrokerLookup, opts ...Option) *MessageNotifier {
	n := &MessageNotifier{
		transport: transport,
		brokers:   brokers,
		baseURL:   "http://localhost:3000",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// PanelURL links the broker panel entry of a prospect.
func (n *MessageNotifier) PanelURL(prospectID int64) string {
	return strings.TrimRight(n.baseURL, "/") + "/corretor/leads?prospectId=" + url.QueryEscape(strconv.FormatInt(prospectID, 10))
}

// NotifyBroker tells the assigned broker about the lead. Accepted rows get
// the informational copy, pending rows the acceptance-required one.
func (n *MessageNotifier) NotifyBroker(ctx context.Context, e model.AssignmentEvent) error {
	if e.Broker.Email == "" {
		return fmt.Errorf("%w: broker %s", ErrNoRecipient, e.Broker.ID)
	}
	tmpl := TemplateBrokerAcceptance
	if e.Informational() {
		tmpl = TemplateBrokerInformational
	}
	data := n.leadData(e)
	if e.Assignment.ExpiresAt != nil {
		data["expires_at"] = e.Assignment.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return n.deliver(ctx, Message{Template: tmpl, To: e.Broker.Email, Name: e.Broker.Name, Data: data})
}

// NotifyClient tells the client which broker will contact them.
func (n *MessageNotifier) NotifyClient(ctx context.Context, e model.AssignmentEvent) error {
	if e.Prospect.ClientEmail == "" {
		return fmt.Errorf("%w: client of prospect %d", ErrNoRecipient, e.Prospect.ID)
	}
	data := map[string]string{
		"property_code": e.Prospect.PropertyCode,
		"property":      e.Prospect.PropertyTitle,
		"broker_name":   e.Broker.Name,
		"broker_email":  e.Broker.Email,
	}
	return n.deliver(ctx, Message{Template: TemplateClientAssigned, To: e.Prospect.ClientEmail, Name: e.Prospect.ClientName, Data: data})
}

// NotifyPreviousBroker tells the broker the lead escalated away from them.
func (n *MessageNotifier) NotifyPreviousBroker(ctx context.Context, e model.AssignmentEvent) error {
	if e.PreviousBrokerID == "" {
		return nil
	}
	prev, err := n.brokers.Broker(ctx, e.PreviousBrokerID)
	if err != nil {
		return fmt.Errorf("previous broker %s: %w", e.PreviousBrokerID, err)
	}
	if prev.Email == "" {
		return fmt.Errorf("%w: broker %s", ErrNoRecipient, prev.ID)
	}
	data := map[string]string{
		"prospect_id":   strconv.FormatInt(e.Prospect.ID, 10),
		"property_code": e.Prospect.PropertyCode,
		"property":      e.Prospect.PropertyTitle,
	}
	return n.deliver(ctx, Message{Template: TemplateBrokerLeadLost, To: prev.Email, Name: prev.Name, Data: data})
}

func (n *MessageNotifier) leadData(e model.AssignmentEvent) map[string]string {
	return map[string]string{
		"prospect_id":   strconv.FormatInt(e.Prospect.ID, 10),
		"property_code": e.Prospect.PropertyCode,
		"property":      e.Prospect.PropertyTitle,
		"city":          e.Prospect.Area.City,
		"state":         e.Prospect.Area.State,
		"client_name":   e.Prospect.ClientName,
		"client_email":  e.Prospect.ClientEmail,
		"client_phone":  e.Prospect.ClientPhone,
		"message":       e.Prospect.Message,
		"tier":          e.Tier.String(),
		"panel_url":     n.PanelURL(e.Prospect.ID),
	}
}

func (n *MessageNotifier) deliver(ctx context.Context, m Message) error {
	if err := n.transport.Deliver(ctx, m); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrDelivery, m.Template, m.To, err)
	}
	return nil
}
