package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/gaitpose/internal/pose"
)

// FrameRepository stores frame results and their landmarks.
type FrameRepository struct {
	db *sql.DB
}

// Frames returns the frame repository for this store.
func (s *Store) Frames() *FrameRepository {
	return &FrameRepository{db: s.db}
}

// Append stores result as frame index of a session in a single transaction.
func (r *FrameRepository) Append(sessionID string, index int, result *pose.FrameResult) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO frames (session_id, frame_index, timestamp_ms, inference_ms) VALUES (?, ?, ?, ?)`,
		sessionID, index, result.TimestampMs, result.InferenceTime.Milliseconds(),
	)
	if err != nil {
		return err
	}

	frameID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO landmarks (frame_id, pose_index, landmark_index, x, y, z, visibility, presence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for p, body := range result.Poses {
		for i, l := range body {
			if _, err := stmt.Exec(frameID, p, i, l.X, l.Y, l.Z, l.Visibility, l.Presence); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// ListBySession rebuilds the frame results of a session in frame order.
// Image dimensions are taken from the session.
func (r *FrameRepository) ListBySession(sessionID string) ([]*pose.FrameResult, error) {
	var width, height int
	err := r.db.QueryRow(`SELECT image_width, image_height FROM sessions WHERE id = ?`, sessionID).Scan(&width, &height)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(
		`SELECT f.frame_index, f.timestamp_ms, f.inference_ms,
		        l.pose_index, l.landmark_index, l.x, l.y, l.z, l.visibility, l.presence
		 FROM frames f
		 LEFT JOIN landmarks l ON l.frame_id = f.id
		 WHERE f.session_id = ?
		 ORDER BY f.frame_index, l.pose_index, l.landmark_index`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*pose.FrameResult
	current := -1
	for rows.Next() {
		var (
			frameIndex             int
			timestampMs, inferMs   int64
			poseIndex, lmIndex     sql.NullInt64
			x, y, z, vis, presence sql.NullFloat64
		)
		if err := rows.Scan(&frameIndex, &timestampMs, &inferMs,
			&poseIndex, &lmIndex, &x, &y, &z, &vis, &presence); err != nil {
			return nil, err
		}

		if frameIndex != current {
			current = frameIndex
			results = append(results, &pose.FrameResult{
				Poses:         []pose.Pose{},
				ImageWidth:    width,
				ImageHeight:   height,
				TimestampMs:   timestampMs,
				InferenceTime: time.Duration(inferMs) * time.Millisecond,
			})
		}

		// Frames without any pose come back as a single row of NULLs
		if !poseIndex.Valid {
			continue
		}

		fr := results[len(results)-1]
		for int(poseIndex.Int64) >= len(fr.Poses) {
			fr.Poses = append(fr.Poses, pose.Pose{})
		}
		if lmIndex.Int64 >= 0 && lmIndex.Int64 < pose.NumLandmarks {
			fr.Poses[poseIndex.Int64][lmIndex.Int64] = pose.Landmark{
				X:          x.Float64,
				Y:          y.Float64,
				Z:          z.Float64,
				Visibility: vis.Float64,
				Presence:   presence.Float64,
			}
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
