package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/metrics"
	"github.com/david/holiday-watch/internal/models"
	"github.com/david/holiday-watch/internal/notify"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrSendFailed marks a delivery attempt the sender rejected. The alert row
// is already FAILED, so the job must not be retried.
var ErrSendFailed = errors.New("alert send failed")

type DeliveryResult string

const (
	DeliverySent      DeliveryResult = "sent"
	DeliveryDuplicate DeliveryResult = "duplicate"
	DeliverySkipped   DeliveryResult = "skipped"
)

// PendingAlertResumeAfter is how long a PENDING alert may sit before another
// delivery attempt takes it over. A worker that dies between insert and send
// leaves such a row behind.
const PendingAlertResumeAfter = 15 * time.Minute

// AlertService turns an insight into at most one notification per user,
// series and insight type per week.
type AlertService struct {
	fingerprints FingerprintStore
	profiles     ProfileStore
	alerts       AlertStore
	sender       notify.Sender
	log          *logrus.Entry
	now          func() time.Time
}

func NewAlertService(fingerprints FingerprintStore, profiles ProfileStore, alerts AlertStore, sender notify.Sender) *AlertService {
	return &AlertService{
		fingerprints: fingerprints,
		profiles:     profiles,
		alerts:       alerts,
		sender:       sender,
		log:          logrus.WithField("component", "alert_service"),
		now:          time.Now,
	}
}

// WeekStart is the Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// AlertDedupeKey allows one alert per user, insight type, series and
// fingerprint in each calendar week.
func AlertDedupeKey(userID uuid.UUID, kind models.InsightType, seriesKey string, fingerprintID uuid.UUID, at time.Time) string {
	raw := strings.Join([]string{
		userID.String(),
		string(kind),
		seriesKey,
		fingerprintID.String(),
		WeekStart(at).Format("2006-01-02"),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *AlertService) Deliver(ctx context.Context, in *models.Insight) (DeliveryResult, error) {
	fp, err := s.fingerprints.GetFingerprint(ctx, in.FingerprintID)
	if err != nil {
		return "", fmt.Errorf("load fingerprint %s: %w", in.FingerprintID, err)
	}
	profile, err := s.profiles.GetProfile(ctx, fp.ProfileID)
	if err != nil {
		return "", fmt.Errorf("load profile %s: %w", fp.ProfileID, err)
	}

	now := s.now().UTC()
	key := AlertDedupeKey(profile.UserID, in.Type, in.SeriesKey, fp.ID, now)
	log := s.log.WithFields(logrus.Fields{"insight_id": in.ID, "user_id": profile.UserID, "type": in.Type})

	existing, err := s.alerts.FindAlertByDedupeKey(ctx, key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("check alert dedupe: %w", err)
	}
	if existing != nil {
		if existing.Status != models.AlertPending {
			log.WithField("alert_id", existing.ID).Debug("Alert already raised this week")
			return DeliveryDuplicate, nil
		}
		claimed, err := s.alerts.ReclaimPendingAlert(ctx, existing.ID, now.Add(-PendingAlertResumeAfter), now)
		if err != nil {
			return "", err
		}
		if !claimed {
			log.WithField("alert_id", existing.ID).Debug("Alert delivery already in progress")
			return DeliveryDuplicate, nil
		}
		log.WithField("alert_id", existing.ID).Warn("Resuming alert left pending")
		return s.send(ctx, existing.ID, profile, in, log)
	}

	alert := &models.Alert{
		ID:        uuid.New(),
		UserID:    profile.UserID,
		InsightID: in.ID,
		DedupeKey: key,
		Status:    models.AlertPending,
		CreatedAt: now,
	}
	inserted, err := s.alerts.InsertAlert(ctx, alert)
	if err != nil {
		return "", fmt.Errorf("insert alert: %w", err)
	}
	if !inserted {
		return DeliveryDuplicate, nil
	}
	return s.send(ctx, alert.ID, profile, in, log)
}

func (s *AlertService) send(ctx context.Context, alertID uuid.UUID, profile *models.Profile, in *models.Insight, log *logrus.Entry) (DeliveryResult, error) {
	if profile.Email == "" && profile.Phone == "" {
		s.mark(ctx, alertID, models.AlertSkipped, nil, "no contact details")
		log.Info("Alert skipped: profile has no contact details")
		return DeliverySkipped, nil
	}

	err := s.sender.Send(ctx, notificationFor(profile, in))
	if errors.Is(err, notify.ErrNoRecipient) {
		s.mark(ctx, alertID, models.AlertSkipped, nil, err.Error())
		return DeliverySkipped, nil
	}
	if err != nil {
		s.mark(ctx, alertID, models.AlertFailed, nil, err.Error())
		log.WithError(err).Warn("Alert delivery failed")
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	sentAt := s.now().UTC()
	s.mark(ctx, alertID, models.AlertSent, &sentAt, "")
	log.WithField("alert_id", alertID).Info("Alert sent")
	return DeliverySent, nil
}

func (s *AlertService) mark(ctx context.Context, id uuid.UUID, status models.AlertStatus, sentAt *time.Time, errMsg string) {
	metrics.AlertsDelivered.WithLabelValues(strings.ToLower(string(status))).Inc()
	if err := s.alerts.UpdateAlertStatus(ctx, id, status, sentAt, errMsg); err != nil {
		s.log.WithError(err).WithField("alert_id", id).Error("Failed to update alert status")
	}
}

func notificationFor(profile *models.Profile, in *models.Insight) notify.Notification {
	var details map[string]any
	if len(in.Details) > 0 {
		_ = json.Unmarshal(in.Details, &details)
	}
	subject := "Holiday price alert"
	if profile.Name != "" {
		subject = "Holiday price alert: " + profile.Name
	}
	return notify.Notification{
		Recipient: notify.Recipient{UserID: profile.UserID, Email: profile.Email, Phone: profile.Phone},
		Subject:   subject,
		Summary:   in.Summary,
		Details:   details,
	}
}

// AlertWorker is the queue handler around AlertService.
type AlertWorker struct {
	insights InsightStore
	service  *AlertService
	log      *logrus.Entry
}

func NewAlertWorker(insights InsightStore, service *AlertService) *AlertWorker {
	return &AlertWorker{
		insights: insights,
		service:  service,
		log:      logrus.WithField("component", "alert_worker"),
	}
}

func (w *AlertWorker) Handle(ctx context.Context, job queue.Job) queue.Outcome {
	var p AlertPayload
	if err := job.Decode(&p); err != nil {
		return queue.Fatal(err)
	}

	in, err := w.insights.GetInsight(ctx, p.InsightID)
	if errors.Is(err, models.ErrNotFound) {
		return queue.Fatal(fmt.Errorf("insight %s: %w", p.InsightID, err))
	}
	if err != nil {
		return queue.Retry(fmt.Errorf("load insight %s: %w", p.InsightID, err))
	}

	res, err := w.service.Deliver(ctx, in)
	switch {
	case errors.Is(err, ErrSendFailed), errors.Is(err, models.ErrNotFound):
		return queue.Fatal(err)
	case err != nil:
		return queue.Retry(err)
	}
	w.log.WithFields(logrus.Fields{"insight_id": in.ID, "result": res}).Debug("Alert handled")
	return queue.Success()
}
