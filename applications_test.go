package leads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	users map[int64]Submitter
}

func (f *fakeDirectory) Lookup(ctx context.Context, userID int64) (Submitter, error) {
	if err := ctx.Err(); err != nil {
		return Submitter{}, err
	}
	u, ok := f.users[userID]
	if !ok {
		return Submitter{}, fmt.Errorf("user %d not found", userID)
	}
	return u, nil
}

type notification struct {
	to, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{to: to, subject: subject, body: body})
	return f.err
}

func (f *fakeNotifier) notifications() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.sent...)
}

func newApplicationsService(t *testing.T, notifier *fakeNotifier) *service {
	s := newTestService(t, &Config{
		Directory: &fakeDirectory{users: map[int64]Submitter{
			1:  {Name: "Admin", Email: "admin@example.com"},
			42: {Name: "Jane", Email: "jane@example.com"},
			43: {Name: "No Mail"},
		}},
		Notifier: notifier,
	})
	mustAdd(t, s, "Company", "Text", true)
	return s
}

func TestApplications(t *testing.T) {
	ctx := context.Background()
	s := newApplicationsService(t, &fakeNotifier{})

	approved := mustSubmit(t, s, 42, map[string]string{"Company": "Acme"})
	pending := mustSubmit(t, s, 7, map[string]string{"Company": "Initech"})

	res, err := s.SetStatus(ctx, approved, "approved", 1)
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, approved, res.RecordID)

	views, err := s.Applications(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)

	v := views[0]
	assert.Equal(t, approved, v.Record.ID)
	assert.Equal(t, "Acme", v.Record.Fields["Company"])
	assert.Equal(t, "Jane", v.SubmitterName)
	assert.Equal(t, "jane@example.com", v.SubmitterEmail)
	assert.Equal(t, StatusApproved, v.Status)
	require.NotNil(t, v.ApprovedBy)
	assert.Equal(t, int64(1), *v.ApprovedBy)
	assert.Equal(t, "Admin", v.ApprovedByName)
	require.NotNil(t, v.ApprovedAt)
	assert.True(t, v.ApprovedAt.After(v.Record.CreatedAt))

	// submitter 7 is unknown to the directory; the view is still built
	v = views[1]
	assert.Equal(t, pending, v.Record.ID)
	assert.Equal(t, StatusPending, v.Status)
	assert.Empty(t, v.SubmitterName)
	assert.Nil(t, v.ApprovedBy)
	assert.Empty(t, v.ApprovedByName)
}

func TestApplicationsCanceled(t *testing.T) {
	s := newApplicationsService(t, &fakeNotifier{})
	mustSubmit(t, s, 42, map[string]string{"Company": "Acme"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Applications(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetStatusNotifiesSubmitter(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	s := newApplicationsService(t, notifier)
	id := mustSubmit(t, s, 42, map[string]string{"Company": "Acme"})

	res, err := s.SetStatus(ctx, id, "Rejected", 1)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, fmt.Sprintf("Lead %d marked Rejected", id), res.Message)

	// Close waits for outstanding notifications
	require.NoError(t, s.Close())

	sent := notifier.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@example.com", sent[0].to)
	assert.Equal(t, fmt.Sprintf("Lead application #%d rejected", id), sent[0].subject)
	assert.Contains(t, sent[0].body, "Dear Jane")
	assert.Contains(t, sent[0].body, "has been <b>REJECTED</b>")
}

func TestSetStatusNotificationFailureKeepsDecision(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{err: errors.New("smtp: 550 mailbox unavailable")}
	s := newApplicationsService(t, notifier)
	jane := mustSubmit(t, s, 42, map[string]string{"Company": "Acme"})
	noMail := mustSubmit(t, s, 43, map[string]string{"Company": "Globex"})

	for _, id := range []int64{jane, noMail} {
		res, err := s.SetStatus(ctx, id, "APPROVED", 1)
		require.NoError(t, err)
		require.True(t, res.OK)
	}
	require.NoError(t, s.Close())

	// only Jane has an address to send to
	assert.Len(t, notifier.notifications(), 1)

	for _, id := range []int64{jane, noMail} {
		rec, ok, err := s.Detail(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, StatusApproved, rec.Status)
	}
}

func TestSetStatusRejects(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	s := newApplicationsService(t, notifier)
	id := mustSubmit(t, s, 42, map[string]string{"Company": "Acme"})

	for _, status := range []string{"", "  ", "maybe", "Pending", "pending"} {
		res, err := s.SetStatus(ctx, id, status, 1)
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, CodeInvalidStatus, res.Code)
	}

	rec, ok, err := s.Detail(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.ApprovedBy)
	assert.Nil(t, rec.ApprovedAt)

	res, err := s.SetStatus(ctx, id+1, "Approved", 1)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, CodeUnknownRecord, res.Code)

	require.NoError(t, s.Close())
	assert.Empty(t, notifier.notifications())
}

func TestSetStatusRevisesDecision(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	s := newApplicationsService(t, notifier)
	id := mustSubmit(t, s, 42, map[string]string{"Company": "Acme"})

	for _, status := range []string{"Approved", "Rejected"} {
		res, err := s.SetStatus(ctx, id, status, 1)
		require.NoError(t, err)
		require.True(t, res.OK, res.Message)
	}
	require.NoError(t, s.Close())

	rec, ok, err := s.Detail(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusRejected, rec.Status)
	assert.Len(t, notifier.notifications(), 2)
}

func TestSetStatusRefreshesListings(t *testing.T) {
	ctx := context.Background()
	s := newApplicationsService(t, &fakeNotifier{})
	id := mustSubmit(t, s, 42, map[string]string{"Company": "Acme"})

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusPending, all[0].Status)
	mine, err := s.ListBySubmitter(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StatusPending, mine[0].Status)

	_, err = s.SetStatus(ctx, id, "Approved", 1)
	require.NoError(t, err)

	all, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, all[0].Status)
	mine, err = s.ListBySubmitter(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, mine[0].Status)
}
