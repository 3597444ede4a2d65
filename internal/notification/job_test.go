package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tiffin-tracker-backend/config"
	"tiffin-tracker-backend/internal/db"
	"tiffin-tracker-backend/internal/model"
	"tiffin-tracker-backend/internal/store"
)

const (
	userA = "6f1c1a2e-1d7e-4c55-9d7c-3b0c8f4f2a01"
	userB = "0b8e5c3d-5a0f-4c6e-8f57-1f2d9a7e4b02"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
	calls    int32
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(_ context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.SendFunc(payload, sub, options)
}

func respond(status int) func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
	return func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString("push service says no"))}, nil
	}
}

// fakeStore serves canned eligibility rows and records writes.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string][]store.EligibleUser // keyed by timezone, "" in fixed mode
	zones     []string
	queryErr  error
	markErr   error
	queries   []store.EligibilityQuery
	marked    map[string]string
	cleared   []string
	queryHook func()
}

func newFakeStore(users ...store.EligibleUser) *fakeStore {
	return &fakeStore{users: map[string][]store.EligibleUser{"": users}, marked: make(map[string]string)}
}

func (f *fakeStore) EligibleUsers(ctx context.Context, q store.EligibilityQuery) ([]store.EligibleUser, error) {
	if f.queryHook != nil {
		f.queryHook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var users []store.EligibleUser
	for _, u := range f.users[q.Timezone] {
		if q.ExcludeNotified && f.marked[u.UserID] == q.TargetDate {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (f *fakeStore) EnabledTimezones(context.Context) ([]string, error) {
	return f.zones, nil
}

func (f *fakeStore) MarkNotificationSent(_ context.Context, userID, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked[userID] = date
	return nil
}

func (f *fakeStore) ClearPushSubscription(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	return nil
}

func subscriptionJSON(endpoint string) datatypes.JSON {
	return datatypes.JSON(`{"endpoint":"` + endpoint + `","keys":{"p256dh":"test_p256dh","auth":"test_auth"}}`)
}

func testConfig() *config.Config {
	return &config.Config{
		Push: config.PushConfig{PublicKey: "public", PrivateKey: "private", Subject: "mailto:test@example.com", TTL: 60},
		Reminder: config.ReminderConfig{
			Timezone:     "UTC",
			TimezoneMode: config.TimezoneModeFixed,
			Icon:         "/icon-192.png",
			Badge:        "/icon-192.png",
			URL:          "/",
		},
	}
}

var fixedNow = time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)

func newTestJob(t *testing.T, cfg *config.Config, s ReminderStore, sender NotificationSender) *Job {
	t.Helper()
	j, err := NewJob(cfg, s, zap.NewNop(), WithSender(sender), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return j
}

func TestNewJob_MissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Push.PrivateKey = ""
	_, err := NewJob(cfg, newFakeStore(), zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestJob_Run(t *testing.T) {
	t.Run("sends to users without an entry and skips the rest", func(t *testing.T) {
		fs := newFakeStore(
			store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")},
			store.EligibleUser{UserID: userB, PushSubscription: subscriptionJSON("https://example.com/push/b"), HasEntryToday: true},
		)
		sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			assert.Equal(t, "https://example.com/push/a", sub.Endpoint)
			assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
			assert.Equal(t, "public", options.VAPIDPublicKey)
			assert.Equal(t, "test@example.com", options.Subscriber, "webpush-go adds the mailto: scheme")
			return respond(http.StatusCreated)(payload, sub, options)
		}}

		summary, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
		require.NoError(t, err)

		assert.True(t, summary.Success)
		assert.Equal(t, 1, summary.NotificationsSent)
		assert.Equal(t, 2, summary.UsersChecked)
		assert.Equal(t, "Notifications sent successfully", summary.Message)
		assert.Equal(t, 1, summary.Breakdown[OutcomeSkippedAlreadyLogged])
		assert.Equal(t, map[string]string{userA: "2026-10-14"}, fs.marked)
		assert.EqualValues(t, 1, sender.calls)

		require.Len(t, fs.queries, 1)
		assert.Equal(t, store.EligibilityQuery{TargetTime: "18:00:00", TargetDate: "2026-10-14"}, fs.queries[0])
	})

	t.Run("no eligible users", func(t *testing.T) {
		sender := &mockSender{SendFunc: respond(http.StatusCreated)}
		summary, err := newTestJob(t, testConfig(), newFakeStore(), sender).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, summary.Success)
		assert.Equal(t, "No users to notify at this time", summary.Message)
		assert.Zero(t, summary.UsersChecked)
		assert.Zero(t, sender.calls)
	})

	t.Run("missing or incomplete subscription is skipped", func(t *testing.T) {
		fs := newFakeStore(
			store.EligibleUser{UserID: userA},
			store.EligibleUser{UserID: userB, PushSubscription: datatypes.JSON(`{"keys":{"p256dh":"x","auth":"y"}}`)},
		)
		sender := &mockSender{SendFunc: respond(http.StatusCreated)}
		summary, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Breakdown[OutcomeSkippedNoSubscription])
		assert.Zero(t, summary.NotificationsSent)
		assert.Zero(t, sender.calls)
		assert.Empty(t, fs.marked)
	})

	t.Run("gone subscription is cleared after one attempt", func(t *testing.T) {
		for _, status := range []int{http.StatusGone, http.StatusNotFound} {
			fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/expired")})
			sender := &mockSender{SendFunc: respond(status)}

			summary, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
			require.NoError(t, err)
			assert.True(t, summary.Success)
			assert.Zero(t, summary.NotificationsSent)
			assert.Equal(t, []string{userA}, fs.cleared)
			assert.Empty(t, fs.marked)
			assert.EqualValues(t, 1, sender.calls)
			require.Len(t, summary.Results, 1)
			assert.Equal(t, OutcomeFailedPermanent, summary.Results[0].Outcome)
			assert.Equal(t, status, summary.Results[0].StatusCode)
		}
	})

	t.Run("transient failures keep the subscription and continue", func(t *testing.T) {
		fs := newFakeStore(
			store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")},
			store.EligibleUser{UserID: userB, PushSubscription: subscriptionJSON("https://example.com/push/b")},
		)
		sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			if sub.Endpoint == "https://example.com/push/a" {
				return respond(http.StatusInternalServerError)(payload, sub, options)
			}
			return nil, errors.New("dial tcp: connection refused")
		}}

		summary, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, summary.Success)
		assert.Equal(t, 2, summary.Breakdown[OutcomeFailedTransient])
		assert.Empty(t, fs.cleared)
		assert.Empty(t, fs.marked)
		assert.Contains(t, summary.Results[0].Err.Error(), "push service says no")
		assert.Zero(t, summary.Results[1].StatusCode)
	})

	t.Run("sent but not recorded is not counted", func(t *testing.T) {
		fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")})
		fs.markErr = errors.New("database is locked")
		sender := &mockSender{SendFunc: respond(http.StatusCreated)}

		summary, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, summary.NotificationsSent)
		assert.Equal(t, OutcomeFailedTransient, summary.Results[0].Outcome)
	})

	t.Run("query failure aborts the run", func(t *testing.T) {
		fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")})
		fs.queryErr = errors.New("connection reset")
		sender := &mockSender{SendFunc: respond(http.StatusCreated)}

		summary, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
		require.Error(t, err)
		assert.False(t, summary.Success)
		assert.Contains(t, summary.Error, "connection reset")
		assert.Zero(t, summary.NotificationsSent)
		assert.Zero(t, sender.calls)
		assert.Empty(t, fs.marked)
	})
}

func TestJob_Run_Payload(t *testing.T) {
	fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")})
	var got Payload
	sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
		require.NoError(t, json.Unmarshal(payload, &got))
		return respond(http.StatusCreated)(payload, sub, options)
	}}

	_, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "🍱 Tiffin Tracker Reminder", got.Title)
	assert.Equal(t, "Don't forget to log your tiffins for today!", got.Body)
	assert.Equal(t, "/icon-192.png", got.Icon)
	assert.Equal(t, "/icon-192.png", got.Badge)
	assert.Equal(t, "/", got.Data.URL)
	assert.Equal(t, fixedNow.UnixMilli(), got.Data.Timestamp)
}

func TestJob_Run_PerUserTimezones(t *testing.T) {
	cfg := testConfig()
	cfg.Reminder.TimezoneMode = config.TimezoneModePerUser

	fs := newFakeStore()
	fs.zones = []string{"Asia/Kolkata", "Not/AZone", "UTC"}
	fs.users["UTC"] = []store.EligibleUser{{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")}}
	fs.users["Asia/Kolkata"] = []store.EligibleUser{{UserID: userB, PushSubscription: subscriptionJSON("https://example.com/push/b")}}
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}

	summary, err := newTestJob(t, cfg, fs, sender).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NotificationsSent)

	require.Len(t, fs.queries, 2, "unknown zones are skipped")
	assert.Equal(t, store.EligibilityQuery{TargetTime: "23:30:00", TargetDate: "2026-10-14", Timezone: "Asia/Kolkata"}, fs.queries[0])
	assert.Equal(t, store.EligibilityQuery{TargetTime: "18:00:00", TargetDate: "2026-10-14", Timezone: "UTC"}, fs.queries[1])
	assert.Equal(t, "2026-10-14", fs.marked[userB])
}

func TestJob_Run_TimePrecision(t *testing.T) {
	cfg := testConfig()
	cfg.Reminder.TimePrecision = time.Minute

	fs := newFakeStore()
	j, err := NewJob(cfg, fs, zap.NewNop(),
		WithSender(&mockSender{SendFunc: respond(http.StatusCreated)}),
		WithClock(func() time.Time { return fixedNow.Add(42 * time.Second) }))
	require.NoError(t, err)

	_, err = j.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fs.queries, 1)
	assert.Equal(t, "18:00:00", fs.queries[0].TargetTime)
	assert.True(t, fs.queries[0].ExcludeNotified, "coarse precision skips users already reminded today")
}

func TestJob_Run_ExactPrecisionDoesNotFilterNotified(t *testing.T) {
	fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")})
	fs.marked[userA] = "2026-10-14"
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}

	summary, err := newTestJob(t, testConfig(), fs, sender).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, fs.queries[0].ExcludeNotified)
	assert.Equal(t, 1, summary.NotificationsSent)
}

func TestJob_Run_SequentialRunsInOneWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Reminder.TimePrecision = time.Minute

	fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")})
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}

	for _, offset := range []time.Duration{5 * time.Second, 40 * time.Second} {
		at := fixedNow.Add(offset)
		j, err := NewJob(cfg, fs, zap.NewNop(), WithSender(sender), WithClock(func() time.Time { return at }))
		require.NoError(t, err)
		_, err = j.Run(context.Background())
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, sender.calls, "one reminder per user per day")
}

func TestJob_Run_SharedPassIgnoresCancellation(t *testing.T) {
	fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")})
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}
	j := newTestJob(t, testConfig(), fs, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := j.Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.NotificationsSent)
}

func TestJob_Run_SequentialRunsInOneWindow_SQLite(t *testing.T) {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(gormDB))
	s := store.NewGormStore(gormDB)

	pref := &model.NotificationPreference{UserID: userA, Enabled: true, NotificationTime: "18:00:00", Timezone: "UTC"}
	require.NoError(t, pref.SetSubscription(&model.PushSubscription{
		Endpoint: "https://example.com/push/a",
		Keys:     model.PushKeys{P256DH: "test_p256dh", Auth: "test_auth"},
	}))
	_, err = s.UpsertPreference(context.Background(), pref)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Reminder.TimePrecision = time.Minute
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}

	var sent []int
	for _, offset := range []time.Duration{5 * time.Second, 40 * time.Second} {
		at := fixedNow.Add(offset)
		j, err := NewJob(cfg, s, zap.NewNop(), WithSender(sender), WithClock(func() time.Time { return at }))
		require.NoError(t, err)
		summary, err := j.Run(context.Background())
		require.NoError(t, err)
		sent = append(sent, summary.NotificationsSent)
	}

	assert.Equal(t, []int{1, 0}, sent)
	assert.EqualValues(t, 1, sender.calls)
}

func TestJob_Run_CoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	fs := newFakeStore(store.EligibleUser{UserID: userA, PushSubscription: subscriptionJSON("https://example.com/push/a")})
	fs.queryHook = func() {
		once.Do(func() { close(entered) })
		<-release
	}
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}
	j := newTestJob(t, testConfig(), fs, sender)

	var wg sync.WaitGroup
	summaries := make([]*Summary, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		summaries[0], _ = j.Run(context.Background())
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		summaries[1], _ = j.Run(context.Background())
	}()
	// Give the second caller time to join the pass in flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, sender.calls, "one pass, one push")
	assert.Same(t, summaries[0], summaries[1])
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestJob_Run_WithGormStore(t *testing.T) {
	gormDB, mock := newTestDB(t)
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}
	j := newTestJob(t, testConfig(), store.NewGormStore(gormDB), sender)

	mock.ExpectQuery(`(?s)SELECT .*has_entry_today.* FROM "notification_preferences" WHERE .*notification_time = \$3`).
		WithArgs("2026-10-14", true, "18:00:00").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "push_subscription", "has_entry_today"}).
			AddRow(userA, []byte(subscriptionJSON("https://example.com/push/a")), false).
			AddRow(userB, []byte(subscriptionJSON("https://example.com/push/b")), true))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "notification_preferences" SET "last_notification_sent"=\$1,"updated_at"=\$2 WHERE user_id = \$3`).
		WithArgs("2026-10-14", sqlmock.AnyArg(), userA).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summary, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotificationsSent)
	assert.Equal(t, 2, summary.UsersChecked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJob_Run_WithGormStore_QueryError(t *testing.T) {
	gormDB, mock := newTestDB(t)
	sender := &mockSender{SendFunc: respond(http.StatusCreated)}
	j := newTestJob(t, testConfig(), store.NewGormStore(gormDB), sender)

	mock.ExpectQuery(`(?s)SELECT .*has_entry_today.* FROM "notification_preferences"`).
		WillReturnError(errors.New("connection reset"))

	summary, err := j.Run(context.Background())
	require.Error(t, err)
	assert.False(t, summary.Success)
	// Any unexpected UPDATE would fail here.
	assert.NoError(t, mock.ExpectationsWereMet())
}
