package db

import (
	"database/sql"
	"fmt"
	"time"
)

// RoleUser and RoleModel are the two history roles, matching the provider's
// naming for conversation turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one conversation turn as stored and replayed.
type Turn struct {
	Role    string
	Content string
}

// QuotaStatus reports today's consumption for a user.
type QuotaStatus struct {
	Used      int
	ResetDate string
}

// Store wraps the SQLite handle with the bot's persistence operations.
type Store struct {
	DB *sql.DB
}

// UserLanguage returns the stored language code, or "" when none is set.
func (s *Store) UserLanguage(userID int64) (string, error) {
	var code sql.NullString
	err := s.DB.QueryRow(
		`SELECT language_code FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&code)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read language for user %d: %w", userID, err)
	}
	return code.String, nil
}

// SetUserLanguage stores the user's language preference.
func (s *Store) SetUserLanguage(userID int64, code string) error {
	_, err := s.DB.Exec(`
		INSERT INTO user_preferences (user_id, language_code, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(user_id) DO UPDATE SET language_code = excluded.language_code, updated_at = unixepoch()`,
		userID, code,
	)
	if err != nil {
		return fmt.Errorf("store language for user %d: %w", userID, err)
	}
	return nil
}

// SelectedModel returns the stored model id, or "" when none is set.
func (s *Store) SelectedModel(userID int64) (string, error) {
	var model sql.NullString
	err := s.DB.QueryRow(
		`SELECT selected_model FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&model)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read model for user %d: %w", userID, err)
	}
	return model.String, nil
}

// SetSelectedModel stores the user's model choice.
func (s *Store) SetSelectedModel(userID int64, modelID string) error {
	_, err := s.DB.Exec(`
		INSERT INTO user_preferences (user_id, selected_model, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(user_id) DO UPDATE SET selected_model = excluded.selected_model, updated_at = unixepoch()`,
		userID, modelID,
	)
	if err != nil {
		return fmt.Errorf("store model for user %d: %w", userID, err)
	}
	return nil
}

// AppendHistory appends one conversation turn.
func (s *Store) AppendHistory(userID int64, role, content string) error {
	if role != RoleUser && role != RoleModel {
		return fmt.Errorf("invalid history role %q for user %d", role, userID)
	}
	_, err := s.DB.Exec(
		`INSERT INTO conversation_history (user_id, role, content) VALUES (?, ?, ?)`,
		userID, role, content,
	)
	if err != nil {
		return fmt.Errorf("append history for user %d: %w", userID, err)
	}
	return nil
}

// RecentHistory returns the most recent `limit` turns for the user, ordered
// chronologically (oldest first).
func (s *Store) RecentHistory(userID int64, limit int) ([]Turn, error) {
	rows, err := s.DB.Query(
		`SELECT role, content FROM conversation_history WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read history for user %d: %w", userID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ClearHistory deletes all conversation turns for the user.
func (s *Store) ClearHistory(userID int64) error {
	_, err := s.DB.Exec(`DELETE FROM conversation_history WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear history for user %d: %w", userID, err)
	}
	return nil
}

// ConsumeQuotaOrReject atomically consumes one slot of the user's daily
// quota. It returns (allowed, remaining). A new calendar day resets the
// counter before consuming.
func (s *Store) ConsumeQuotaOrReject(userID int64, dailyLimit int) (bool, int, error) {
	return s.consumeQuotaAt(userID, dailyLimit, today())
}

func (s *Store) consumeQuotaAt(userID int64, dailyLimit int, day string) (bool, int, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return false, 0, fmt.Errorf("begin quota tx for user %d: %w", userID, err)
	}
	defer tx.Rollback()

	var count int
	var resetDate sql.NullString
	err = tx.QueryRow(
		`SELECT daily_chat_count, last_chat_reset_date FROM user_preferences WHERE user_id = ?`,
		userID,
	).Scan(&count, &resetDate)
	switch {
	case err == sql.ErrNoRows:
		count = 0
		resetDate = sql.NullString{}
	case err != nil:
		return false, 0, fmt.Errorf("read quota for user %d: %w", userID, err)
	}

	if !resetDate.Valid || resetDate.String != day {
		count = 0
	}
	if count >= dailyLimit {
		return false, 0, nil
	}

	count++
	_, err = tx.Exec(`
		INSERT INTO user_preferences (user_id, daily_chat_count, last_chat_reset_date, updated_at)
		VALUES (?, ?, ?, unixepoch())
		ON CONFLICT(user_id) DO UPDATE SET
			daily_chat_count = excluded.daily_chat_count,
			last_chat_reset_date = excluded.last_chat_reset_date,
			updated_at = unixepoch()`,
		userID, count, day,
	)
	if err != nil {
		return false, 0, fmt.Errorf("update quota for user %d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit quota for user %d: %w", userID, err)
	}
	return true, dailyLimit - count, nil
}

// Quota returns today's usage without consuming a slot. A stale reset date
// reads as zero used.
func (s *Store) Quota(userID int64) (QuotaStatus, error) {
	var count int
	var resetDate sql.NullString
	err := s.DB.QueryRow(
		`SELECT daily_chat_count, last_chat_reset_date FROM user_preferences WHERE user_id = ?`,
		userID,
	).Scan(&count, &resetDate)
	if err == sql.ErrNoRows {
		return QuotaStatus{}, nil
	}
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("read quota status for user %d: %w", userID, err)
	}
	status := QuotaStatus{Used: count, ResetDate: resetDate.String}
	if resetDate.String != today() {
		status.Used = 0
	}
	return status, nil
}

func today() string {
	return time.Now().Format("2006-01-02")
}
