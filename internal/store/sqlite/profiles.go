package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tixbot/internal/model"
)

// SaveLoginProfile 按标签持久化一份登录 cookie。
func (s *Store) SaveLoginProfile(ctx context.Context, label string, cookies []model.Cookie) error {
	if label == "" {
		return errors.New("profile label is required")
	}
	b, err := json.Marshal(cookies)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO login_profiles (label, cookies_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			cookies_json = excluded.cookies_json,
			updated_at = excluded.updated_at
	`, label, string(b), time.Now().UnixMilli())
	return err
}

// GetLoginProfile 取登录 cookie；没存过返回 (nil, false, nil)。
func (s *Store) GetLoginProfile(ctx context.Context, label string) (model.LoginProfile, bool, error) {
	var raw string
	var updatedMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cookies_json, updated_at FROM login_profiles WHERE label = ?`, label,
	).Scan(&raw, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LoginProfile{}, false, nil
	}
	if err != nil {
		return model.LoginProfile{}, false, err
	}

	p := model.LoginProfile{Label: label, UpdatedMs: updatedMs}
	if err := json.Unmarshal([]byte(raw), &p.Cookies); err != nil {
		return model.LoginProfile{}, false, err
	}
	return p, true, nil
}
