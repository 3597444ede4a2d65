package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tiffin-tracker-backend/config"
	"tiffin-tracker-backend/internal/model"
	"tiffin-tracker-backend/internal/parse"
	"tiffin-tracker-backend/internal/store"
)

// ErrMissingCredentials is returned by NewJob when the VAPID key pair is incomplete.
var ErrMissingCredentials = errors.New("VAPID keys not configured")

// ReminderStore is the part of store.Store the reminder job reads and writes.
type ReminderStore interface {
	EligibleUsers(ctx context.Context, q store.EligibilityQuery) ([]store.EligibleUser, error)
	EnabledTimezones(ctx context.Context) ([]string, error)
	MarkNotificationSent(ctx context.Context, userID, date string) error
	ClearPushSubscription(ctx context.Context, userID string) error
}

// Option customises a Job.
type Option func(*Job)

// WithSender replaces the web push transport.
func WithSender(s NotificationSender) Option {
	return func(j *Job) { j.sender = s }
}

// WithClock replaces the wall clock used to pick the reminder time.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// Job is the daily reminder dispatch: one pass over the users whose reminder
// time is now, sending a push to each one who has not logged today.
type Job struct {
	store   ReminderStore
	sender  NotificationSender
	webpush *webpush.Options
	cfg     config.ReminderConfig
	loc     *time.Location
	now     func() time.Time
	log     *zap.Logger
	group   singleflight.Group
}

// NewJob validates the push credentials and builds a job.
func NewJob(cfg *config.Config, s ReminderStore, log *zap.Logger, opts ...Option) (*Job, error) {
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		return nil, ErrMissingCredentials
	}
	loc, err := time.LoadLocation(cfg.Reminder.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load reminder timezone %q: %w", cfg.Reminder.Timezone, err)
	}

	j := &Job{
		store:  s,
		sender: &WebPushSender{},
		webpush: &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subscriber(),
			TTL:             cfg.Push.TTL,
			Urgency:         webpush.Urgency(cfg.Push.Urgency),
		},
		cfg: cfg.Reminder,
		loc: loc,
		now: time.Now,
		log: log.Named("reminders"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run executes one dispatch pass. Calls that overlap a pass in progress wait
// for it and share its summary. A non-nil error means the run was aborted;
// the returned summary then describes the failure.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	// The shared pass outlives the caller that started it, so a cancelled
	// first caller cannot fail the callers that joined it.
	v, err, shared := j.group.Do("send-tiffin-reminders", func() (interface{}, error) {
		return j.runOnce(context.WithoutCancel(ctx))
	})
	if err != nil {
		j.log.Error("reminder run failed", zap.Error(err))
		return Failure(err), err
	}
	if shared {
		j.log.Debug("joined reminder run already in progress")
	}
	return v.(*Summary), nil
}

type dueUser struct {
	store.EligibleUser
	date string
}

func (j *Job) runOnce(ctx context.Context) (*Summary, error) {
	now := j.now()

	queries, err := j.queries(ctx, now)
	if err != nil {
		return nil, err
	}

	// Every query runs before the first send so a failing query leaves the
	// store untouched.
	var due []dueUser
	for _, q := range queries {
		j.log.Info("checking for notifications",
			zap.String("time", q.TargetTime),
			zap.String("date", q.TargetDate),
			zap.String("timezone", q.Timezone))
		users, err := j.store.EligibleUsers(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("fetch eligible users: %w", err)
		}
		for _, u := range users {
			due = append(due, dueUser{EligibleUser: u, date: q.TargetDate})
		}
	}
	j.log.Info("found users to notify", zap.Int("count", len(due)))

	payload, err := reminderPayload(j.cfg.Icon, j.cfg.Badge, j.cfg.URL, now)
	if err != nil {
		return nil, fmt.Errorf("encode reminder payload: %w", err)
	}

	results := make([]UserResult, 0, len(due))
	for _, u := range due {
		results = append(results, j.dispatch(ctx, u, payload))
	}

	summary := summarize(results)
	j.log.Info("reminder run finished",
		zap.Int("usersChecked", summary.UsersChecked),
		zap.Int("notificationsSent", summary.NotificationsSent))
	return summary, nil
}

// queries returns the eligibility queries for this instant. In fixed mode
// every user is compared against the configured zone regardless of the zone
// they stored; per_user mode evaluates each stored zone on its own clock.
//
// With a precision coarser than a second several runs can land on the same
// truncated clock, so users already reminded on the target date are left out.
func (j *Job) queries(ctx context.Context, now time.Time) ([]store.EligibilityQuery, error) {
	excludeNotified := j.cfg.TimePrecision > time.Second
	if j.cfg.TimezoneMode != config.TimezoneModePerUser {
		clock, date := parse.Clock(now, j.loc, j.cfg.TimePrecision)
		return []store.EligibilityQuery{{TargetTime: clock, TargetDate: date, ExcludeNotified: excludeNotified}}, nil
	}

	zones, err := j.store.EnabledTimezones(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch eligible users: %w", err)
	}
	queries := make([]store.EligibilityQuery, 0, len(zones))
	for _, zone := range zones {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			j.log.Warn("skipping users with unknown timezone", zap.String("timezone", zone), zap.Error(err))
			continue
		}
		clock, date := parse.Clock(now, loc, j.cfg.TimePrecision)
		queries = append(queries, store.EligibilityQuery{
			TargetTime:      clock,
			TargetDate:      date,
			Timezone:        zone,
			ExcludeNotified: excludeNotified,
		})
	}
	return queries, nil
}

// dispatch handles one user. It never returns an error: every failure is
// recorded in the result so the loop can carry on with the next user.
func (j *Job) dispatch(ctx context.Context, u dueUser, payload []byte) UserResult {
	res := UserResult{UserID: u.UserID, Date: u.date}
	log := j.log.With(zap.String("user", u.UserID))

	if u.HasEntryToday {
		log.Debug("skipping user, already has entry for today")
		res.Outcome = OutcomeSkippedAlreadyLogged
		return res
	}

	sub, err := u.Subscription()
	if err != nil {
		log.Warn("unreadable push subscription", zap.Error(err))
	}
	if !sub.Deliverable() {
		log.Info("skipping user, no valid push subscription")
		res.Outcome = OutcomeSkippedNoSubscription
		return res
	}

	res.StatusCode, res.Err = j.send(ctx, sub, payload)
	switch {
	case res.Err == nil:
		if err := j.store.MarkNotificationSent(ctx, u.UserID, u.date); err != nil {
			log.Error("notification sent but updating last_notification_sent failed", zap.Error(err))
			res.Outcome = OutcomeFailedTransient
			res.Err = fmt.Errorf("record sent notification: %w", err)
			return res
		}
		log.Info("notification sent")
		res.Outcome = OutcomeSent
	case res.StatusCode == http.StatusGone || res.StatusCode == http.StatusNotFound:
		log.Info("removing invalid subscription", zap.Int("status", res.StatusCode))
		res.Outcome = OutcomeFailedPermanent
		if err := j.store.ClearPushSubscription(ctx, u.UserID); err != nil {
			log.Error("failed to clear invalid subscription", zap.Error(err))
		}
	default:
		log.Warn("failed to send push notification", zap.Int("status", res.StatusCode), zap.Error(res.Err))
		res.Outcome = OutcomeFailedTransient
	}
	return res
}

// send delivers payload and maps the push service response to an error.
// The status code is zero when no response was received.
func (j *Job) send(ctx context.Context, sub *model.PushSubscription, payload []byte) (int, error) {
	// Map the stored column type onto the transport's own subscription type.
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256DH,
			Auth:   sub.Keys.Auth,
		},
	}

	resp, err := j.sender.Send(ctx, payload, wpSub, j.webpush)
	if err != nil {
		return 0, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, fmt.Errorf("push service returned %d: %s", resp.StatusCode, body)
}
