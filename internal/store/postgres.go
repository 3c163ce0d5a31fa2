package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Username, user.Email, user.DisplayName, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, `WHERE id=$1`, userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `WHERE email=$1`, email)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUser(ctx, `WHERE username=$1`, username)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, display_name, password_hash, created_at, updated_at
		FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateUserDisplayName(ctx context.Context, userID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$2, updated_at=NOW() WHERE id=$1
	`, userID, displayName)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Profiles

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, phone, city, state, postal_code, birth_date, photo_key, updated_at
		FROM profiles
		WHERE user_id=$1
	`, userID).Scan(&profile.UserID, &profile.Phone, &profile.City, &profile.State, &profile.PostalCode, &profile.BirthDate, &profile.PhotoKey, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{UserID: userID}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, profile Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, phone, city, state, postal_code, birth_date, photo_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			phone=EXCLUDED.phone, city=EXCLUDED.city, state=EXCLUDED.state,
			postal_code=EXCLUDED.postal_code, birth_date=EXCLUDED.birth_date,
			photo_key=EXCLUDED.photo_key, updated_at=NOW()
	`, profile.UserID, profile.Phone, profile.City, profile.State, profile.PostalCode, profile.BirthDate, profile.PhotoKey)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfilePhoto(ctx context.Context, userID, photoKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, photo_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET photo_key=EXCLUDED.photo_key, updated_at=NOW()
	`, userID, photoKey)
	if err != nil {
		return fmt.Errorf("update profile photo: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh sessions & token revocation (Postgres fallback when Redis is off)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.email, u.display_name, u.password_hash, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.Username, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Categories

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description
		FROM categories
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var item Category
		if err := rows.Scan(&item.ID, &item.Name, &item.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Items

const itemColumns = `id, slug, title, description, status, location, event_date, image_key, owner_id, category_id, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Slug, &item.Title, &item.Description, &item.Status, &item.Location,
		&item.EventDate, &item.ImageKey, &item.OwnerID, &item.CategoryID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) InsertItem(ctx context.Context, item Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, slug, title, description, status, location, event_date, image_key, owner_id, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.Slug, item.Title, item.Description, item.Status, item.Location, item.EventDate, item.ImageKey, item.OwnerID, item.CategoryID)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item Item) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET title=$2, description=$3, status=$4, location=$5, event_date=$6, image_key=$7, category_id=$8, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Description, item.Status, item.Location, item.EventDate, item.ImageKey, item.CategoryID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id=$1`, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, itemID))
}

func (s *PostgresStore) GetItemBySlug(ctx context.Context, slug string) (Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE slug=$1`, slug))
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM items WHERE slug=$1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// ListItems returns the newest items first, narrowed by the filter. The
// caller controls paging through Limit/Offset (lookahead included).
func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	args := []any{}
	argN := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND (title ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%' OR location ILIKE '%%' || $%d || '%%')`, argN, argN, argN)
		args = append(args, filter.Query)
		argN++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status=$%d`, argN)
		args = append(args, filter.Status)
		argN++
	}
	if filter.CategoryID != "" {
		query += fmt.Sprintf(` AND category_id=$%d`, argN)
		args = append(args, filter.CategoryID)
		argN++
	}
	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id=$%d`, argN)
		args = append(args, filter.OwnerID)
		argN++
	}

	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountItems(ctx context.Context, ownerID string) (ItemCounts, error) {
	var counts ItemCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status='lost'),
			COUNT(*) FILTER (WHERE status='found')
		FROM items
		WHERE ($1='' OR owner_id=$1)
	`, ownerID).Scan(&counts.Total, &counts.Lost, &counts.Found)
	if err != nil {
		return ItemCounts{}, fmt.Errorf("count items: %w", err)
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// Chats

const chatColumns = `id, item_id, initiator_id, owner_id, status, created_at, updated_at`

func scanChat(row interface{ Scan(...any) error }) (Chat, error) {
	var chat Chat
	err := row.Scan(&chat.ID, &chat.ItemID, &chat.InitiatorID, &chat.OwnerID, &chat.Status, &chat.CreatedAt, &chat.UpdatedAt)
	return chat, err
}

// GetOrCreateChat inserts the chat keyed by (item, initiator, owner) and
// reads back the surviving row on conflict, so concurrent starts for the
// same key converge on a single chat. The uniqueness constraint does the
// arbitration; no caller-side locking.
func (s *PostgresStore) GetOrCreateChat(ctx context.Context, chat Chat) (Chat, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO chats (id, item_id, initiator_id, owner_id, status)
		VALUES ($1, $2, $3, $4, 'active')
		ON CONFLICT (item_id, initiator_id, owner_id) DO NOTHING
		RETURNING `+chatColumns,
		chat.ID, chat.ItemID, chat.InitiatorID, chat.OwnerID)

	created, err := scanChat(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Chat{}, false, fmt.Errorf("insert chat: %w", err)
	}

	existing, err := scanChat(s.db.QueryRowContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats
		WHERE item_id=$1 AND initiator_id=$2 AND owner_id=$3
	`, chat.ItemID, chat.InitiatorID, chat.OwnerID))
	if err != nil {
		return Chat{}, false, fmt.Errorf("read back chat: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID))
}

// ReopenChat flips a closed chat back to active. Reports whether a row
// changed; an already-active chat is left untouched.
func (s *PostgresStore) ReopenChat(ctx context.Context, chatID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chats SET status='active', updated_at=NOW()
		WHERE id=$1 AND status='closed'
	`, chatID)
	if err != nil {
		return false, fmt.Errorf("reopen chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reopen chat rows: %w", err)
	}
	return affected > 0, nil
}

// CloseChat is idempotent: closing a closed chat affects no rows and
// that is still success for the caller.
func (s *PostgresStore) CloseChat(ctx context.Context, chatID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chats SET status='closed', updated_at=NOW()
		WHERE id=$1 AND status <> 'closed'
	`, chatID)
	if err != nil {
		return false, fmt.Errorf("close chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close chat rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListChatsForUser(ctx context.Context, userID string) ([]ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.item_id, c.initiator_id, c.owner_id, c.status, c.created_at, c.updated_at,
			i.display_name, o.display_name,
			COALESCE(it.title, 'Deleted item'),
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id=c.id AND m.read=FALSE AND m.sender_id <> $1)
		FROM chats c
		JOIN users i ON i.id = c.initiator_id
		JOIN users o ON o.id = c.owner_id
		LEFT JOIN items it ON it.id = c.item_id
		WHERE c.initiator_id=$1 OR c.owner_id=$1
		ORDER BY c.updated_at DESC, c.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	items := make([]ChatSummary, 0)
	for rows.Next() {
		var item ChatSummary
		if err := rows.Scan(
			&item.ID, &item.ItemID, &item.InitiatorID, &item.OwnerID, &item.Status, &item.CreatedAt, &item.UpdatedAt,
			&item.InitiatorName, &item.OwnerName, &item.ItemTitle, &item.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan chat summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Messages

// AppendMessage stores the message and advances the chat's last-activity
// timestamp in one transaction; a poll observes both or neither.
func (s *PostgresStore) AppendMessage(ctx context.Context, message Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, kind, sent_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, message.ID, message.ChatID, message.SenderID, message.Content, message.Kind, message.SentAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chats SET updated_at=$2 WHERE id=$1
	`, message.ChatID, message.SentAt); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append message: %w", err)
	}
	return nil
}

// MarkReadAndListMessages flips the other party's unread messages to read
// and returns the full ordered transcript, both inside one transaction.
// A message committed after the update statement ran stays unread and is
// picked up by the next poll.
func (s *PostgresStore) MarkReadAndListMessages(ctx context.Context, chatID, readerID string) ([]Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read messages: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET read=TRUE
		WHERE chat_id=$1 AND read=FALSE AND sender_id <> $2
	`, chatID, readerID); err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}

	messages, err := listMessagesTx(ctx, tx, chatID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read messages: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	return listMessagesTx(ctx, s.db, chatID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listMessagesTx(ctx context.Context, q querier, chatID string) ([]Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.sender_id, u.display_name, m.content, m.kind, m.sent_at, m.read
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id=$1
		ORDER BY m.sent_at ASC, m.id ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.ChatID, &item.SenderID, &item.SenderName, &item.Content, &item.Kind, &item.SentAt, &item.Read); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}
