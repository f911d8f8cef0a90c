// Package quota is the admission controller. Humans are capped by one
// aggregate daily total; agents carry separate post and comment caps.
// All counters are scoped to the opaque period key, so virtual-day
// experiments inherit the same semantics.
package quota

import (
	"fmt"

	"flock/internal/logging"
	"flock/internal/store"
)

// Controller enforces the per-subject daily publication limits.
type Controller struct {
	store             *store.Store
	humanDaily        int
	agentPostDaily    int
	agentCommentDaily int
}

// New builds a controller over the shared store.
func New(s *store.Store, humanDaily, agentPostDaily, agentCommentDaily int) *Controller {
	return &Controller{
		store:             s,
		humanDaily:        humanDaily,
		agentPostDaily:    agentPostDaily,
		agentCommentDaily: agentCommentDaily,
	}
}

// Check reports whether the subject may publish one more item of the
// given kind in the current period, without consuming anything.
func (c *Controller) Check(subjectType string, subjectID int64, contentKind string) (bool, string, error) {
	var allowed bool
	var reason string
	err := c.store.WithLock(func() error {
		q, err := c.store.GetOrCreateQuotaLocked(subjectType, subjectID, c.store.TodayKey())
		if err != nil {
			return err
		}
		allowed, reason = c.evaluate(q, subjectType, contentKind)
		return nil
	})
	if err != nil {
		return false, "", fmt.Errorf("quota check: %w", err)
	}
	return allowed, reason, nil
}

// CheckAndConsume admits and records one publication in a single
// critical section. The read, the limit comparison, and the counter
// write all happen under the store lock, so concurrent callers can
// never over-admit.
func (c *Controller) CheckAndConsume(subjectType string, subjectID int64, contentKind string) (bool, string, error) {
	var allowed bool
	var reason string
	err := c.store.WithLock(func() error {
		q, err := c.store.GetOrCreateQuotaLocked(subjectType, subjectID, c.store.TodayKey())
		if err != nil {
			return err
		}
		allowed, reason = c.evaluate(q, subjectType, contentKind)
		if !allowed {
			return nil
		}
		post := q.PostCount
		comment := q.CommentCount
		if contentKind == store.ContentPost {
			post++
		}
		if contentKind == store.ContentComment {
			comment++
		}
		return c.store.SetQuotaCountsLocked(q.ID, post, comment, q.TotalCount+1)
	})
	if err != nil {
		return false, "", fmt.Errorf("quota consume: %w", err)
	}
	if !allowed {
		logging.SchedulerDebug("Quota denied %s/%d for %s: %s", subjectType, subjectID, contentKind, reason)
	}
	return allowed, reason, nil
}

// Refund returns one previously consumed admission, flooring every
// counter at zero. Callers use it when the publication that consumed
// the slot failed to persist, so a storage error cannot burn quota.
func (c *Controller) Refund(subjectType string, subjectID int64, contentKind string) error {
	err := c.store.WithLock(func() error {
		q, err := c.store.GetOrCreateQuotaLocked(subjectType, subjectID, c.store.TodayKey())
		if err != nil {
			return err
		}
		post := q.PostCount
		comment := q.CommentCount
		if contentKind == store.ContentPost && post > 0 {
			post--
		}
		if contentKind == store.ContentComment && comment > 0 {
			comment--
		}
		total := q.TotalCount
		if total > 0 {
			total--
		}
		return c.store.SetQuotaCountsLocked(q.ID, post, comment, total)
	})
	if err != nil {
		return fmt.Errorf("quota refund: %w", err)
	}
	return nil
}

func (c *Controller) evaluate(q store.QuotaRow, subjectType, contentKind string) (bool, string) {
	if subjectType == store.SubjectHuman {
		if q.TotalCount >= c.humanDaily {
			return false, fmt.Sprintf("Human daily limit reached (%d).", c.humanDaily)
		}
		return true, "ok"
	}
	if contentKind == store.ContentPost && q.PostCount >= c.agentPostDaily {
		return false, fmt.Sprintf("AI post limit reached (%d/day).", c.agentPostDaily)
	}
	if contentKind == store.ContentComment && q.CommentCount >= c.agentCommentDaily {
		return false, fmt.Sprintf("AI comment limit reached (%d/day).", c.agentCommentDaily)
	}
	return true, "ok"
}
