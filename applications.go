package leads

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const directoryLookupConcurrency = 8

func (s *service) Applications(ctx context.Context) ([]ApplicationView, error) {
	recs, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	ids := map[int64]struct{}{}
	for _, r := range recs {
		ids[r.SubmitterID] = struct{}{}
		if r.ApprovedBy != nil {
			ids[*r.ApprovedBy] = struct{}{}
		}
	}
	people, err := s.lookupAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ApplicationView, 0, len(recs))
	for _, r := range recs {
		v := ApplicationView{
			Record:         r,
			SubmitterName:  people[r.SubmitterID].Name,
			SubmitterEmail: people[r.SubmitterID].Email,
			Status:         r.Status,
			ApprovedBy:     r.ApprovedBy,
			ApprovedAt:     r.ApprovedAt,
		}
		if r.ApprovedBy != nil {
			v.ApprovedByName = people[*r.ApprovedBy].Name
		}
		out = append(out, v)
	}
	return out, nil
}

// lookupAll resolves every id through the directory concurrently. A user the directory cannot
// resolve is left blank; only cancellation fails the whole call.
func (s *service) lookupAll(ctx context.Context, ids map[int64]struct{}) (map[int64]Submitter, error) {
	out := make(map[int64]Submitter, len(ids))
	if s.conf.Directory == nil || len(ids) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(directoryLookupConcurrency)
	for id := range ids {
		id := id
		g.Go(func() error {
			sub, err := s.conf.Directory.Lookup(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.log.WithField("user_id", id).WithError(err).Warn("directory lookup failed")
				return nil
			}
			mu.Lock()
			out[id] = sub
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) SetStatus(ctx context.Context, id int64, status string, approverID int64) (Result, error) {
	// a decision is Approved or Rejected; nothing moves a lead back to Pending
	st, ok := ParseStatus(status)
	if !ok || st == StatusPending || strings.TrimSpace(status) == "" {
		return ResultFromError(newError(CodeInvalidStatus, FieldStatus, "status %q must be Approved or Rejected", status))
	}

	rec, err := s.setStatus(ctx, id, st, approverID)
	if err != nil {
		return ResultFromError(err)
	}

	s.log.WithFields(logrus.Fields{
		"lead_id":     rec.ID,
		"status":      rec.Status,
		"approved_by": approverID,
	}).Info("lead status changed")

	s.notify(rec)
	return Result{OK: true, Message: fmt.Sprintf("Lead %d marked %s", rec.ID, rec.Status), RecordID: rec.ID}, nil
}

func (s *service) setStatus(ctx context.Context, id int64, status Status, approverID int64) (StoredRecord, error) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	rec, err := s.backend.UpdateStatus(ctx, id, status, approverID, s.conf.Now())
	if err != nil {
		return StoredRecord{}, err
	}
	s.invalidate(ctx, s.catalog.Generation(), rec.SubmitterID)
	return rec, nil
}

// notify tells the submitter about a decision in the background. Failures are logged and never
// undo the status change.
func (s *service) notify(rec StoredRecord) {
	if s.conf.Notifier == nil || s.conf.Directory == nil {
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx := context.Background()
		entry := s.log.WithFields(logrus.Fields{"lead_id": rec.ID, "submitter_id": rec.SubmitterID})

		who, err := s.conf.Directory.Lookup(ctx, rec.SubmitterID)
		if err != nil {
			entry.WithError(err).Warn("notification skipped: submitter lookup failed")
			return
		}
		if who.Email == "" {
			entry.Warn("notification skipped: submitter has no email")
			return
		}

		subject, body := statusMessage(who, rec)
		if err := s.conf.Notifier.Notify(ctx, who.Email, subject, body); err != nil {
			entry.WithError(err).Warn("notification failed")
		}
	}()
}

func statusMessage(who Submitter, rec StoredRecord) (string, string) {
	name := who.Name
	if name == "" {
		name = "there"
	}
	subject := fmt.Sprintf("Lead application #%d %s", rec.ID, strings.ToLower(string(rec.Status)))
	body := fmt.Sprintf(`<p>Dear %s,</p>
<p>Your lead application <b>#%d</b> has been <b>%s</b>.</p>
<br/>
<p>Regards,<br/>CRM Buddies Team</p>`, name, rec.ID, strings.ToUpper(string(rec.Status)))
	return subject, body
}
