package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gaitpose/internal/pose"
)

// Session represents one processed input stored in the database.
type Session struct {
	ID             string
	Source         string
	Mode           pose.RunningMode
	ImageWidth     int
	ImageHeight    int
	IntervalMs     int64
	Config         pose.Config
	ExportLocation string
	Frames         int
	CreatedAt      time.Time
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session. An ID is generated when empty.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	sess.CreatedAt = time.Now()

	config, err := json.Marshal(sess.Config)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO sessions (id, source, mode, image_width, image_height, interval_ms, config, export_location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Source, sess.Mode.String(), sess.ImageWidth, sess.ImageHeight,
		sess.IntervalMs, string(config), sess.ExportLocation, sess.CreatedAt,
	)
	return err
}

const sessionColumns = `s.id, s.source, s.mode, s.image_width, s.image_height, s.interval_ms,
	s.config, s.export_location, s.created_at,
	(SELECT COUNT(*) FROM frames f WHERE f.session_id = s.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var mode, config string

	err := row.Scan(&sess.ID, &sess.Source, &mode, &sess.ImageWidth, &sess.ImageHeight,
		&sess.IntervalMs, &config, &sess.ExportLocation, &sess.CreatedAt, &sess.Frames)
	if err != nil {
		return nil, err
	}

	if sess.Mode, err = pose.ParseRunningMode(mode); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &sess.Config); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess, err := scanSession(r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(`SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.created_at DESC`)
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

// UpdateSize records the source image dimensions of a session.
func (r *SessionRepository) UpdateSize(id string, width, height int) error {
	return r.exec(`UPDATE sessions SET image_width = ?, image_height = ? WHERE id = ?`, width, height, id)
}

// SetExportLocation records where the session's CSV export was saved.
func (r *SessionRepository) SetExportLocation(id, location string) error {
	return r.exec(`UPDATE sessions SET export_location = ? WHERE id = ?`, location, id)
}

// Delete removes a session and, through cascades, its frames and landmarks.
func (r *SessionRepository) Delete(id string) error {
	return r.exec(`DELETE FROM sessions WHERE id = ?`, id)
}

func (r *SessionRepository) exec(query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
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
