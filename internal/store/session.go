package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session records one capture run.
type Session struct {
	ID               string     `json:"id"`
	CameraID         int        `json:"camera_id"`
	ModelPath        string     `json:"model_path"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	FramesCaptured   uint64     `json:"frames_captured"`
	FramesAdmitted   uint64     `json:"frames_admitted"`
	FramesDropped    uint64     `json:"frames_dropped"`
	FramesCompleted  uint64     `json:"frames_completed"`
	DetectorFailures uint64     `json:"detector_failures"`
	DecodeSkips      uint64     `json:"decode_skips"`
	LastFPS          float64    `json:"last_fps"`
}

// SessionSample is a throughput reading taken during a session.
type SessionSample struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	RecordedAt time.Time `json:"recorded_at"`
	FPS        float64   `json:"fps"`
	Objects    int       `json:"objects"`
}

// SessionRepository provides operations for capture sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, camera_id, model_path, started_at, ended_at, frames_captured,
	frames_admitted, frames_dropped, frames_completed, detector_failures, decode_skips, last_fps`

// Create inserts a new session. An ID is generated when empty and StartedAt
// defaults to now.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, camera_id, model_path, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.CameraID, sess.ModelPath, sess.StartedAt,
	)
	return err
}

// Finish stores the final counters of a session and marks it ended.
func (r *SessionRepository) Finish(sess *Session) error {
	now := time.Now()
	sess.EndedAt = &now

	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, frames_captured = ?, frames_admitted = ?, frames_dropped = ?,
		 frames_completed = ?, detector_failures = ?, decode_skips = ?, last_fps = ?
		 WHERE id = ?`,
		now, sess.FramesCaptured, sess.FramesAdmitted, sess.FramesDropped,
		sess.FramesCompleted, sess.DetectorFailures, sess.DecodeSkips, sess.LastFPS, sess.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime

	err := row.Scan(&sess.ID, &sess.CameraID, &sess.ModelPath, &sess.StartedAt, &ended,
		&sess.FramesCaptured, &sess.FramesAdmitted, &sess.FramesDropped, &sess.FramesCompleted,
		&sess.DetectorFailures, &sess.DecodeSkips, &sess.LastFPS)
	if err != nil {
		return nil, err
	}

	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess, err := scanSession(r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List retrieves sessions, newest first. A limit of zero or less returns all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session and its samples.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// AddSample records a throughput reading for a session.
func (r *SessionRepository) AddSample(sample *SessionSample) error {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO session_samples (session_id, recorded_at, fps, objects) VALUES (?, ?, ?, ?)`,
		sample.SessionID, sample.RecordedAt, sample.FPS, sample.Objects,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	sample.ID = id
	return nil
}

// Samples returns the readings of a session in recording order.
func (r *SessionRepository) Samples(sessionID string) ([]*SessionSample, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, recorded_at, fps, objects FROM session_samples
		 WHERE session_id = ? ORDER BY recorded_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*SessionSample
	for rows.Next() {
		s := &SessionSample{}
		if err := rows.Scan(&s.ID, &s.SessionID, &s.RecordedAt, &s.FPS, &s.Objects); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}
