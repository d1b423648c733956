package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qmark.app/internal/secret"
)

func testCodec(t *testing.T) *secret.Codec {
	t.Helper()
	codec, err := secret.NewCodec(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return codec
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	opts = append([]Option{WithCodec(testCodec(t)), WithMaxConns(1)}, opts...)
	s, err := Open(context.Background(), "file:store_"+name+"?mode=memory&cache=shared", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func mustUser(t *testing.T, s *Store, email string) User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), User{Email: &email})
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }

// frozenClock returns the same instant until advanced.
type frozenClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *frozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *frozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreateUser(ctx, User{
		Email:     ptr("Ada@Example.com"),
		FirstName: ptr("Ada"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "ada@example.com", *created.Email)

	got, ok, err := s.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "Ada", *got.FirstName)
	require.Nil(t, got.LastName)
	require.True(t, created.CreatedAt.Equal(got.CreatedAt))

	byEmail, ok, err := s.FindUserByEmail(ctx, " ADA@example.com ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, byEmail.ID)

	_, ok, err = s.GetUser(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustUser(t, s, "dup@example.com")

	_, err := s.CreateUser(ctx, User{Email: ptr("DUP@example.com")})
	require.ErrorIs(t, err, ErrConflict)
}

func TestUpsertUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.UpsertUser(ctx, User{ID: "ext-1", FirstName: ptr("Grace")})
	require.NoError(t, err)
	require.Equal(t, "ext-1", u.ID)

	u, err = s.UpsertUser(ctx, User{ID: "ext-1", FirstName: ptr("Grace"), LastName: ptr("Hopper")})
	require.NoError(t, err)
	require.Equal(t, "Hopper", *u.LastName)
	require.True(t, u.UpdatedAt.After(u.CreatedAt))

	_, err = s.UpsertUser(ctx, User{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLeadLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &frozenClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.Now))
	u := mustUser(t, s, "lead@example.com")

	lead, err := s.CreateLead(ctx, Lead{
		UserID:   u.ID,
		Name:     ptr("Jane"),
		Metadata: json.RawMessage(`{"campaign":"spring"}`),
	})
	require.NoError(t, err)
	require.Equal(t, LeadNew, lead.Status)

	got, ok, err := s.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"campaign":"spring"}`, string(got.Metadata))

	converted := LeadConverted
	first, err := s.UpdateLead(ctx, lead.ID, LeadPatch{Status: &converted})
	require.NoError(t, err)
	require.Equal(t, LeadConverted, first.Status)
	require.Equal(t, "Jane", *first.Name)
	require.True(t, first.UpdatedAt.After(lead.UpdatedAt))

	second, err := s.UpdateLead(ctx, lead.ID, LeadPatch{Notes: ptr("called back")})
	require.NoError(t, err)
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))
	require.Equal(t, LeadConverted, second.Status)

	reread, _, err := s.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.True(t, second.UpdatedAt.Equal(reread.UpdatedAt))
	require.Equal(t, "called back", *reread.Notes)

	bogus := LeadStatus("won")
	_, err = s.UpdateLead(ctx, lead.ID, LeadPatch{Status: &bogus})
	require.ErrorIs(t, err, ErrInvalidInput)

	mixedCase := LeadStatus(" Qualified ")
	normalized, err := s.UpdateLead(ctx, lead.ID, LeadPatch{Status: &mixedCase})
	require.NoError(t, err)
	require.Equal(t, LeadQualified, normalized.Status)

	blank := LeadStatus("")
	_, err = s.UpdateLead(ctx, lead.ID, LeadPatch{Status: &blank})
	require.ErrorIs(t, err, ErrInvalidInput)

	deleted, err := s.DeleteLead(ctx, lead.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = s.DeleteLead(ctx, lead.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	_, err = s.UpdateLead(ctx, lead.ID, LeadPatch{Notes: ptr("x")})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateLeadValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "v@example.com")

	_, err := s.CreateLead(ctx, Lead{UserID: u.ID, Status: "won"})
	require.ErrorIs(t, err, ErrInvalidInput)

	lead, err := s.CreateLead(ctx, Lead{UserID: u.ID, Status: "Contacted"})
	require.NoError(t, err)
	require.Equal(t, LeadContacted, lead.Status)

	_, err = s.CreateLead(ctx, Lead{UserID: u.ID, Metadata: json.RawMessage(`{broken`)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.CreateLead(ctx, Lead{UserID: "nobody"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestActivitiesPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "feed@example.com")

	var ids []string
	for i := 0; i < 25; i++ {
		a, err := s.CreateActivity(ctx, Activity{UserID: u.ID, Type: "note", Title: "entry"})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	page, err := s.ListActivitiesByUser(ctx, u.ID, Page{})
	require.NoError(t, err)
	require.Len(t, page, 20)
	require.Equal(t, ids[24], page[0].ID)
	require.Equal(t, ids[5], page[19].ID)

	rest, err := s.ListActivitiesByUser(ctx, u.ID, Page{Limit: 20, Offset: 20})
	require.NoError(t, err)
	require.Len(t, rest, 5)
	require.Equal(t, ids[0], rest[4].ID)

	capped, err := s.ListActivitiesByUser(ctx, u.ID, Page{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, capped, 25)

	_, err = s.CreateActivity(ctx, Activity{UserID: u.ID, Type: "note"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestListsAreScopedToUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := mustUser(t, s, "a@example.com")
	b := mustUser(t, s, "b@example.com")

	_, err := s.CreateLead(ctx, Lead{UserID: a.ID})
	require.NoError(t, err)
	_, err = s.CreateAutomation(ctx, Automation{UserID: a.ID, Name: "n", Type: "email"})
	require.NoError(t, err)

	leads, err := s.ListLeadsByUser(ctx, b.ID, Page{})
	require.NoError(t, err)
	require.Empty(t, leads)
	automations, err := s.ListAutomationsByUser(ctx, b.ID, Page{})
	require.NoError(t, err)
	require.Empty(t, automations)
}

func TestAutomationUpdateKeepsRunCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "auto@example.com")

	_, err := s.CreateAutomation(ctx, Automation{UserID: u.ID, Type: "email"})
	require.ErrorIs(t, err, ErrInvalidInput)

	a, err := s.CreateAutomation(ctx, Automation{
		UserID:   u.ID,
		Name:     "Welcome",
		Type:     "email",
		Config:   json.RawMessage(`{"delay":5}`),
		IsActive: true,
	})
	require.NoError(t, err)
	require.Zero(t, a.RunCount)

	_, err = s.DB().Exec(`update automations set run_count = 7 where id = $1`, a.ID)
	require.NoError(t, err)

	updated, err := s.UpdateAutomation(ctx, a.ID, AutomationPatch{IsActive: ptr(false), Name: ptr("Welcome v2")})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, int64(7), updated.RunCount)
	require.JSONEq(t, `{"delay":5}`, string(updated.Config))

	_, err = s.UpdateAutomation(ctx, a.ID, AutomationPatch{Name: ptr("  ")})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "gone@example.com")

	_, err := s.CreateLead(ctx, Lead{UserID: u.ID})
	require.NoError(t, err)
	_, err = s.CreateAutomation(ctx, Automation{UserID: u.ID, Name: "a", Type: "sms"})
	require.NoError(t, err)
	_, err = s.CreateActivity(ctx, Activity{UserID: u.ID, Type: "t", Title: "t"})
	require.NoError(t, err)
	_, err = s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: time.Now(), LeadsCount: 1})
	require.NoError(t, err)
	_, err = s.CreateOAuthConnection(ctx, OAuthConnection{UserID: u.ID, Platform: "google", AccessToken: "tok"})
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, Session{ID: "h", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	counts, err := s.CountOwned(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, OwnedCounts{Connections: 1, Leads: 1, Automations: 1, Activities: 1, Metrics: 1, Sessions: 1}, counts)

	deleted, err := s.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	counts, err = s.CountOwned(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, OwnedCounts{}, counts)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "tx@example.com")
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.CreateLead(ctx, Lead{UserID: u.ID}); err != nil {
			return err
		}
		if _, err := tx.CreateActivity(ctx, Activity{UserID: u.ID, Type: ActivityLeadCaptured, Title: "x"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
		first, err := tx.CreateLead(ctx, Lead{UserID: u.ID})
		if err != nil {
			return err
		}
		_, err = tx.CreateLead(ctx, Lead{ID: first.ID, UserID: u.ID})
		return err
	})
	require.ErrorIs(t, err, ErrConflict)

	require.Panics(t, func() {
		_ = s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			_, _ = tx.CreateLead(ctx, Lead{UserID: u.ID})
			panic("handler bug")
		})
	})

	counts, err := s.CountOwned(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, counts.Leads)
	require.Zero(t, counts.Activities)

	err = s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.CreateLead(ctx, Lead{UserID: u.ID}); err != nil {
			return err
		}
		_, err := tx.CreateActivity(ctx, Activity{UserID: u.ID, Type: ActivityLeadCaptured, Title: "x"})
		return err
	})
	require.NoError(t, err)
	counts, err = s.CountOwned(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Leads)
	require.Equal(t, int64(1), counts.Activities)
}

func TestDashboardStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "dash@example.com")
	other := mustUser(t, s, "other@example.com")
	now := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		status := LeadNew
		if i < 2 {
			status = LeadConverted
		}
		_, err := s.CreateLead(ctx, Lead{UserID: u.ID, Status: status})
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := s.CreateAutomation(ctx, Automation{UserID: u.ID, Name: "a", Type: "email", IsActive: i < 2})
		require.NoError(t, err)
	}
	_, err := s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), RevenueCents: 10000})
	require.NoError(t, err)
	_, err = s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: time.Date(2024, 5, 19, 8, 0, 0, 0, time.UTC), RevenueCents: 5000})
	require.NoError(t, err)
	_, err = s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), RevenueCents: 99900})
	require.NoError(t, err)
	_, err = s.CreateLead(ctx, Lead{UserID: other.ID, Status: LeadConverted})
	require.NoError(t, err)

	stats, err := s.DashboardStats(ctx, u.ID, now)
	require.NoError(t, err)
	require.Equal(t, DashboardStats{TotalLeads: 5, TotalConversions: 2, ActiveAutomations: 2, TotalRevenue: 150.0}, stats)

	empty, err := s.DashboardStats(ctx, "nobody", now)
	require.NoError(t, err)
	require.Equal(t, DashboardStats{}, empty)
}

func TestUpsertMetric(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "m@example.com")
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	first, err := s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: day.Add(3 * time.Hour), LeadsCount: 3})
	require.NoError(t, err)
	second, err := s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: day, LeadsCount: 9, RevenueCents: 250})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(9), second.LeadsCount)
	require.True(t, second.Date.Equal(day))

	_, err = s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: day.AddDate(0, 0, -1), LeadsCount: 1})
	require.NoError(t, err)

	all, err := s.ListMetricsByUser(ctx, u.ID, time.Time{}, Page{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, all[0].Date.Before(all[1].Date))

	recent, err := s.ListMetricsByUser(ctx, u.ID, day, Page{})
	require.NoError(t, err)
	require.Len(t, recent, 1)

	_, err = s.UpsertMetric(ctx, Metric{UserID: u.ID, Date: day, LeadsCount: -1})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestConnectionTokensEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "conn@example.com")

	c, err := s.CreateOAuthConnection(ctx, OAuthConnection{
		UserID:       u.ID,
		Platform:     "Google",
		AccessToken:  "ya29.plain-access",
		RefreshToken: "1//plain-refresh",
		IsActive:     true,
	})
	require.NoError(t, err)
	require.Equal(t, "google", c.Platform)

	var access, refresh string
	require.NoError(t, s.DB().QueryRow(`select access_token, refresh_token from oauth_connections where id = $1`, c.ID).
		Scan(&access, &refresh))
	require.NotContains(t, access, "plain-access")
	require.NotContains(t, refresh, "plain-refresh")
	require.True(t, strings.HasPrefix(access, "v1."))

	got, ok, err := s.GetOAuthConnection(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, got.AccessToken)

	got, ok, err = s.GetOAuthConnectionTokens(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ya29.plain-access", got.AccessToken)
	require.Equal(t, "1//plain-refresh", got.RefreshToken)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "plain")

	_, err = s.CreateOAuthConnection(ctx, OAuthConnection{UserID: u.ID, Platform: "google"})
	require.ErrorIs(t, err, ErrConflict)

	updated, err := s.UpsertOAuthConnection(ctx, OAuthConnection{
		UserID:      u.ID,
		Platform:    "google",
		AccessToken: "ya29.rotated",
		IsActive:    true,
	})
	require.NoError(t, err)
	require.Equal(t, c.ID, updated.ID)
	got, _, err = s.GetOAuthConnectionTokens(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "ya29.rotated", got.AccessToken)
	require.Equal(t, "1//plain-refresh", got.RefreshToken)

	list, err := s.ListOAuthConnectionsByUser(ctx, u.ID, Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestConnectionsUsableAfterKeyChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "rotated@example.com")
	c, err := s.CreateOAuthConnection(ctx, OAuthConnection{
		UserID: u.ID, Platform: "google", AccessToken: "old-access", RefreshToken: "old-refresh", IsActive: true,
	})
	require.NoError(t, err)

	other, err := secret.NewCodec(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)
	rotated := New(s.DB(), s.Dialect(), WithCodec(other))

	list, err := rotated.ListOAuthConnectionsByUser(ctx, u.ID, Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, _, err = rotated.GetOAuthConnectionTokens(ctx, c.ID)
	require.ErrorIs(t, err, ErrInternal)

	updated, err := rotated.UpdateOAuthConnection(ctx, c.ID, OAuthConnectionPatch{IsActive: ptr(false)})
	require.NoError(t, err)
	require.False(t, updated.IsActive)

	_, err = rotated.UpsertOAuthConnection(ctx, OAuthConnection{
		UserID: u.ID, Platform: "google", AccessToken: "new-access", RefreshToken: "new-refresh", IsActive: true,
	})
	require.NoError(t, err)
	got, ok, err := rotated.GetOAuthConnectionTokens(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new-access", got.AccessToken)
	require.Equal(t, "new-refresh", got.RefreshToken)

	deleted, err := rotated.DeleteOAuthConnection(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	_, ok, err = rotated.GetOAuthConnection(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokensRequireCodec(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithCodec(nil))
	u := mustUser(t, s, "nocodec@example.com")

	_, err := s.CreateOAuthConnection(ctx, OAuthConnection{UserID: u.ID, Platform: "google", AccessToken: "t"})
	require.ErrorIs(t, err, ErrInternal)

	c, err := s.CreateOAuthConnection(ctx, OAuthConnection{UserID: u.ID, Platform: "facebook"})
	require.NoError(t, err)
	require.Empty(t, c.AccessToken)
}

func TestConsumeOAuthState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "state@example.com")
	now := time.Now().UTC()

	_, err := s.CreateOAuthState(ctx, OAuthState{
		State:        "abc",
		UserID:       u.ID,
		Platform:     "google",
		CodeVerifier: "verifier",
		ExpiresAt:    now.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	st, err := s.ConsumeOAuthState(ctx, "abc", now)
	require.NoError(t, err)
	require.Equal(t, u.ID, st.UserID)
	require.Equal(t, "verifier", st.CodeVerifier)
	require.NotNil(t, st.ConsumedAt)

	_, err = s.ConsumeOAuthState(ctx, "abc", now)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateOAuthState(ctx, OAuthState{
		State:     "old",
		UserID:    u.ID,
		Platform:  "google",
		ExpiresAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)
	_, err = s.ConsumeOAuthState(ctx, "old", now)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.ConsumeOAuthState(ctx, "never-issued", now)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteExpiredOAuthStates(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "sess@example.com")
	now := time.Now().UTC()

	live, err := s.CreateSession(ctx, Session{ID: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, Session{ID: "stale", UserID: u.ID, ExpiresAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	got, ok, err := s.GetSession(ctx, "live")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u.ID, got.UserID)
	require.True(t, live.ExpiresAt.Equal(got.ExpiresAt))

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	deleted, err := s.DeleteSession(ctx, "live")
	require.NoError(t, err)
	require.True(t, deleted)
	_, ok, err = s.GetSession(ctx, "live")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTouchLastSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "seen@example.com")
	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.TouchLastSeen(ctx, u.ID, at))
	got, _, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSeenAt)
	require.True(t, at.Equal(*got.LastSeenAt))
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end)
}
