package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a session and its suggestion records in one
// transaction. Record ids are filled in on success.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session, records []SuggestionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recommendation_sessions (id, user_id, sentiment_id, intention_id, created_at, completed_at, is_active, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.SentimentID, sess.IntentionID, sess.CreatedAt, sess.CompletedAt, sess.IsActive, rawOrNil(sess.Context))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO suggestion_records (session_id, movie_id, personalized_reason, relevance_score, intention_alignment, was_viewed, was_accepted, user_feedback, contextual_factors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare suggestion record insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		r.SessionID = sess.ID
		res, err := stmt.ExecContext(ctx, r.SessionID, r.MovieID, r.PersonalizedReason, r.RelevanceScore,
			r.IntentionAlignment, r.Viewed, r.Accepted, r.Feedback, rawOrNil(r.ContextualFactors))
		if err != nil {
			return fmt.Errorf("failed to insert suggestion record for movie %s: %w", r.MovieID, err)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read id of suggestion record for movie %s: %w", r.MovieID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

const sessionColumns = "id, user_id, sentiment_id, intention_id, created_at, completed_at, is_active, context"

func scanSession(sc scanner) (*Session, error) {
	var sess Session
	var userID, ctxJSON sql.NullString
	var completed sql.NullTime
	if err := sc.Scan(&sess.ID, &userID, &sess.SentimentID, &sess.IntentionID, &sess.CreatedAt, &completed, &sess.IsActive, &ctxJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.UserID = nullString(userID)
	if completed.Valid {
		t := completed.Time
		sess.CompletedAt = &t
	}
	sess.Context = rawJSON(ctxJSON)
	return &sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM recommendation_sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

// ListSessionRecords returns a session's records in insertion order with
// movie titles attached.
func (s *SQLiteStore) ListSessionRecords(ctx context.Context, sessionID string) ([]SuggestionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.session_id, r.movie_id, COALESCE(m.title, ''), r.personalized_reason, r.relevance_score,
		       r.intention_alignment, r.was_viewed, r.was_accepted, r.user_feedback, r.contextual_factors
		FROM suggestion_records r
		LEFT JOIN movies m ON m.id = r.movie_id
		WHERE r.session_id = ?
		ORDER BY r.id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestion records: %w", err)
	}
	defer rows.Close()

	var out []SuggestionRecord
	for rows.Next() {
		var r SuggestionRecord
		var feedback, factors sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &r.MovieID, &r.MovieTitle, &r.PersonalizedReason, &r.RelevanceScore,
			&r.IntentionAlignment, &r.Viewed, &r.Accepted, &feedback, &factors); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion record row: %w", err)
		}
		r.Feedback = nullString(feedback)
		r.ContextualFactors = rawJSON(factors)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateSuggestionFeedback overwrites the viewed and accepted flags of every
// record of movieID in the session. A nil Feedback keeps the stored text.
// It returns how many records matched.
func (s *SQLiteStore) UpdateSuggestionFeedback(ctx context.Context, sessionID, movieID string, fb FeedbackUpdate) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suggestion_records SET was_viewed = ?, was_accepted = ?, user_feedback = COALESCE(?, user_feedback)
		WHERE session_id = ? AND movie_id = ?`,
		fb.Viewed, fb.Accepted, fb.Feedback, sessionID, movieID)
	if err != nil {
		return 0, fmt.Errorf("failed to update feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// CompleteSession marks an active session completed. It reports false when the
// session was not active, including when it does not exist.
func (s *SQLiteStore) CompleteSession(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE recommendation_sessions SET is_active = FALSE, completed_at = ? WHERE id = ? AND is_active = TRUE", at, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// ListSessionsByUser returns the user's sessions newest first, with records.
func (s *SQLiteStore) ListSessionsByUser(ctx context.Context, userID string) ([]SessionDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.sentiment_id, s.intention_id, s.created_at, s.completed_at, s.is_active, s.context,
		       COALESCE(st.name, ''), COALESCE(i.intention_type, '')
		FROM recommendation_sessions s
		LEFT JOIN sentiments st ON st.id = s.sentiment_id
		LEFT JOIN intentions i ON i.id = s.intention_id
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC, s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	var out []SessionDetail
	for rows.Next() {
		var d SessionDetail
		var uid, ctxJSON sql.NullString
		var completed sql.NullTime
		var typ string
		if err := rows.Scan(&d.ID, &uid, &d.SentimentID, &d.IntentionID, &d.CreatedAt, &completed, &d.IsActive, &ctxJSON,
			&d.SentimentName, &typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		d.UserID = nullString(uid)
		if completed.Valid {
			t := completed.Time
			d.CompletedAt = &t
		}
		d.Context = rawJSON(ctxJSON)
		d.IntentionType = IntentionType(typ)
		out = append(out, d)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	for i := range out {
		records, err := s.ListSessionRecords(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Suggestions = records
	}
	return out, nil
}

// SessionStats aggregates session and feedback counts.
func (s *SQLiteStore) SessionStats(ctx context.Context) (*SessionStats, error) {
	var st SessionStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0)
		FROM recommendation_sessions`).Scan(&st.TotalSessions, &st.ActiveSessions, &st.CompletedSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN was_accepted THEN 1 ELSE 0 END), 0)
		FROM suggestion_records`).Scan(&st.TotalSuggestions, &st.AcceptedSuggestions)
	if err != nil {
		return nil, fmt.Errorf("failed to count suggestion records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(i.intention_type, ''), COALESCE(st.name, ''), COUNT(*)
		FROM recommendation_sessions s
		LEFT JOIN intentions i ON i.id = s.intention_id
		LEFT JOIN sentiments st ON st.id = i.sentiment_id
		GROUP BY s.intention_id
		ORDER BY s.intention_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to group sessions by intention: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c IntentionCount
		var typ string
		if err := rows.Scan(&typ, &c.SentimentName, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan intention count: %w", err)
		}
		c.IntentionType = IntentionType(typ)
		st.ByIntention = append(st.ByIntention, c)
	}
	return &st, rows.Err()
}
