package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/ayusman/gaitpose/internal/pose"
)

// poseConfigKey is the settings key holding the detection thresholds.
const poseConfigKey = "pose_config"

// SettingsRepository stores application settings as key-value pairs.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// LoadConfig returns the saved detection config, or pose.DefaultConfig if none was saved.
func (r *SettingsRepository) LoadConfig() (pose.Config, error) {
	value, err := r.Get(poseConfigKey)
	if errors.Is(err, ErrNotFound) {
		return pose.DefaultConfig(), nil
	}
	if err != nil {
		return pose.Config{}, err
	}

	cfg := pose.DefaultConfig()
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return pose.Config{}, err
	}
	return cfg, nil
}

// SaveConfig validates and stores the detection config.
func (r *SettingsRepository) SaveConfig(cfg pose.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.Set(poseConfigKey, string(data))
}
