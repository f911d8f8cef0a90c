package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Quota access runs inside WithLock. The Locked variants do not take
// the store mutex themselves; calling them without WithLock is a bug.

// GetOrCreateQuotaLocked fetches the quota row for one subject and
// period, lazily inserting a zeroed record.
func (s *Store) GetOrCreateQuotaLocked(subjectType string, subjectID int64, dayKey string) (QuotaRow, error) {
	row, err := s.getQuotaLocked(subjectType, subjectID, dayKey)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return QuotaRow{}, err
	}

	if _, err := s.db.Exec(`
		INSERT INTO daily_quota (subject_type, subject_id, day_key, post_count, comment_count, total_count, updated_at)
		VALUES (?, ?, ?, 0, 0, 0, ?)`,
		subjectType, subjectID, dayKey, s.NowISO(),
	); err != nil {
		return QuotaRow{}, fmt.Errorf("create quota: %w", err)
	}
	return s.getQuotaLocked(subjectType, subjectID, dayKey)
}

// SetQuotaCountsLocked overwrites the counters of one quota row.
func (s *Store) SetQuotaCountsLocked(id int64, postCount, commentCount, totalCount int) error {
	if _, err := s.db.Exec(`
		UPDATE daily_quota
		SET post_count = ?, comment_count = ?, total_count = ?, updated_at = ?
		WHERE id = ?`,
		postCount, commentCount, totalCount, s.NowISO(), id,
	); err != nil {
		return fmt.Errorf("set quota counts: %w", err)
	}
	return nil
}

// GetOrCreateQuota is the locking wrapper for read-only callers such
// as the dashboard.
func (s *Store) GetOrCreateQuota(subjectType string, subjectID int64, dayKey string) (QuotaRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GetOrCreateQuotaLocked(subjectType, subjectID, dayKey)
}

func (s *Store) getQuotaLocked(subjectType string, subjectID int64, dayKey string) (QuotaRow, error) {
	var q QuotaRow
	err := s.db.QueryRow(`
		SELECT id, subject_type, subject_id, day_key, post_count, comment_count, total_count, updated_at
		FROM daily_quota
		WHERE subject_type = ? AND subject_id = ? AND day_key = ?`,
		subjectType, subjectID, dayKey,
	).Scan(&q.ID, &q.SubjectType, &q.SubjectID, &q.DayKey,
		&q.PostCount, &q.CommentCount, &q.TotalCount, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QuotaRow{}, ErrNotFound
	}
	if err != nil {
		return QuotaRow{}, fmt.Errorf("get quota: %w", err)
	}
	return q, nil
}
