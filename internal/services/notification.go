package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"partyflow/internal/services/messenger"
	"partyflow/internal/status"
	"partyflow/models"
	"partyflow/monitoring"
	"partyflow/utils"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const reminderLockName = "daily-reminders"

const (
	kindReminder  = "reminder"
	kindBroadcast = "broadcast"
	kindTicket    = "ticket"
)

type NotificationConfig struct {
	Workers  int
	Rate     float64 // messages per second, 0 disables limiting
	Timeout  time.Duration
	Location *time.Location
}

// NotificationService fans messages out to ticket holders. A failed
// delivery is logged and counted and never stops the others.
type NotificationService struct {
	store     EventStore
	messenger messenger.Messenger
	runLock   utils.RunLock
	limiter   *rate.Limiter
	workers   int
	timeout   time.Duration
	loc       *time.Location
	now       func() time.Time
}

func NewNotificationService(store EventStore, m messenger.Messenger, runLock utils.RunLock, cfg NotificationConfig) *NotificationService {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if runLock == nil {
		runLock = utils.NewLocalRunLock()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(1, int(cfg.Rate)))
	}

	return &NotificationService{
		store:     store,
		messenger: m,
		runLock:   runLock,
		limiter:   limiter,
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
		loc:       cfg.Location,
		now:       time.Now,
	}
}

// NotifyEventOwners sends render(event) once to every distinct ticket
// holder of the event.
func (n *NotificationService) NotifyEventOwners(ctx context.Context, eventID string, render func(models.Event) string) (models.DeliveryReport, error) {
	event, err := n.store.GetEvent(ctx, eventID)
	if err != nil {
		return models.DeliveryReport{EventID: eventID}, err
	}
	return n.notifyEvent(ctx, kindBroadcast, *event, render)
}

// Broadcast sends an admin message to every ticket holder of the event.
func (n *NotificationService) Broadcast(ctx context.Context, eventID, text string) (models.DeliveryReport, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.DeliveryReport{EventID: eventID}, fmt.Errorf("%w: message is required", status.ErrValidation)
	}

	report, err := n.NotifyEventOwners(ctx, eventID, func(e models.Event) string {
		return fmt.Sprintf("📢 %s\n\n%s", e.Name, text)
	})
	if err != nil {
		return report, err
	}

	slog.Info("Broadcast finished", "event_id", eventID, "recipients", report.Recipients, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

// SendDailyReminders messages the ticket holders of every event dated
// today in the configured timezone. Only one run may be active at a time.
func (n *NotificationService) SendDailyReminders(ctx context.Context) (*models.ReminderRun, error) {
	release, acquired, err := n.runLock.TryLock(ctx, reminderLockName)
	if err != nil {
		monitoring.TrackReminderRun("error")
		return nil, err
	}
	if !acquired {
		monitoring.TrackReminderRun("skipped")
		return nil, status.ErrReminderRunning
	}
	defer release()

	day := n.now().In(n.loc).Format(models.DateLayout)
	run := &models.ReminderRun{Day: day, Reports: []models.DeliveryReport{}}

	events, err := n.store.ListEventsOn(ctx, day)
	if err != nil {
		monitoring.TrackReminderRun("error")
		return nil, err
	}

	for _, event := range events {
		report, err := n.notifyEvent(ctx, kindReminder, event, reminderText)
		if err != nil {
			slog.Error("Failed to send reminders", "event_id", event.ID, "error", err)
		}
		run.Events++
		run.Sent += report.Sent
		run.Failed += report.Failed
		run.Reports = append(run.Reports, report)
	}

	monitoring.TrackReminderRun("ok")
	slog.Info("Daily reminders finished", "day", day, "events", run.Events, "sent", run.Sent, "failed", run.Failed)
	return run, nil
}

// NotifyTicketIssued sends the buyer a confirmation with a QR code of the
// ticket id.
func (n *NotificationService) NotifyTicketIssued(ctx context.Context, evt *models.TicketIssued) error {
	png, err := qrcode.Encode(ticketQRContent(evt.TicketID), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode ticket qr: %w", err)
	}

	msg := messenger.Message{
		Text:      confirmationText(evt),
		Photo:     png,
		PhotoName: fmt.Sprintf("ticket-%s.png", evt.TicketID),
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.messenger.Send(sendCtx, evt.OwnerID, msg)
	monitoring.TrackNotification(kindTicket, err)
	if err != nil {
		return fmt.Errorf("%w: ticket confirmation: %w", status.ErrExternalService, err)
	}
	return nil
}

func (n *NotificationService) notifyEvent(ctx context.Context, kind string, event models.Event, render func(models.Event) string) (models.DeliveryReport, error) {
	report := models.DeliveryReport{EventID: event.ID}

	owners, err := n.store.ListTicketOwners(ctx, event.ID)
	if err != nil {
		return report, err
	}
	report.Recipients = len(owners)
	if len(owners) == 0 {
		return report, nil
	}

	msg := messenger.Message{Text: render(event)}

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(n.workers)

	for _, owner := range owners {
		g.Go(func() error {
			if err := n.deliver(ctx, owner, msg); err != nil {
				failed.Add(1)
				monitoring.TrackNotification(kind, err)
				slog.Error("Failed to deliver notification", "kind", kind, "event_id", event.ID, "recipient", owner, "error", err)
				return nil
			}
			sent.Add(1)
			monitoring.TrackNotification(kind, nil)
			return nil
		})
	}
	_ = g.Wait()

	report.Sent = int(sent.Load())
	report.Failed = int(failed.Load())
	return report, nil
}

func (n *NotificationService) deliver(ctx context.Context, recipient string, msg messenger.Message) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.messenger.Send(sendCtx, recipient, msg)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: send timed out after %s", status.ErrExternalService, n.timeout)
	}
	return err
}

func reminderText(e models.Event) string {
	return fmt.Sprintf("⏰ Reminder: %s is today!\n📍 %s\nSee you there 🎉", e.Name, e.Location)
}

func confirmationText(evt *models.TicketIssued) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Payment received, %s!\n", evt.OwnerName)
	if evt.EventName != "" {
		fmt.Fprintf(&b, "🎈 %s\n📍 %s | 📅 %s\n", evt.EventName, evt.Location, evt.EventDate)
	}
	fmt.Fprintf(&b, "🎟 Ticket %s", utils.TicketCode(evt.TicketID))
	return b.String()
}

func ticketQRContent(ticketID string) string {
	return "partyflow:ticket:" + ticketID
}
