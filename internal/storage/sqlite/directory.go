package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

const userColumns = `id, COALESCE(phone_key, ''), username, name, plan, locale`

func scanUser(row interface{ Scan(...any) error }) (ledger.User, error) {
	var (
		u    ledger.User
		plan string
	)
	if err := row.Scan(&u.ID, &u.Phone, &u.Username, &u.Name, &plan, &u.Locale); err != nil {
		return ledger.User{}, err
	}
	u.Plan = ledger.Plan(plan)
	return u, nil
}

// FindUserByPhone returns the user linked to the canonical phone key.
func (s *Store) FindUserByPhone(ctx context.Context, phoneKey string) (ledger.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone_key = ?`, phoneKey)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// LookupUsers returns the people requesterID can share transactions with.
func (s *Store) LookupUsers(ctx context.Context, requesterID string) ([]ledger.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, COALESCE(u.phone_key, ''), u.username, u.name, u.plan, u.locale
		FROM contacts c JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = ?
		ORDER BY u.name, u.id`, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []ledger.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListCategories returns the user's categories in display order.
func (s *Store) ListCategories(ctx context.Context, userID string) ([]ledger.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, kind FROM categories
		WHERE user_id = ? ORDER BY position, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ledger.Category
	for rows.Next() {
		var (
			c    ledger.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Kind = ledger.Kind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCards returns the user's credit cards in display order.
func (s *Store) ListCards(ctx context.Context, userID string) ([]ledger.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, brand FROM cards
		WHERE user_id = ? ORDER BY position, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ledger.Card
	for rows.Next() {
		var c ledger.Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Brand); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveUser inserts or updates u, assigning an ID when empty.
func (s *Store) SaveUser(ctx context.Context, u *ledger.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Plan == "" {
		u.Plan = ledger.PlanFree
	}

	var phone any
	if u.Phone != "" {
		phone = u.Phone
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, phone_key, username, name, plan, locale) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET phone_key = excluded.phone_key, username = excluded.username,
			name = excluded.name, plan = excluded.plan, locale = excluded.locale`,
		u.ID, phone, u.Username, u.Name, string(u.Plan), u.Locale)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// AddContact links two users in both directions.
func (s *Store) AddContact(ctx context.Context, userID, contactID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO contacts (user_id, contact_id) VALUES (?, ?), (?, ?)`,
		userID, contactID, contactID, userID)
	if err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	return nil
}

// SaveCategory inserts c, assigning an ID when empty.
func (s *Store) SaveCategory(ctx context.Context, c *ledger.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, kind, position)
		VALUES (?, ?, ?, ?, (SELECT COUNT(*) FROM categories WHERE user_id = ?))`,
		c.ID, c.UserID, c.Name, string(c.Kind), c.UserID)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

// SaveCard inserts c, assigning an ID when empty.
func (s *Store) SaveCard(ctx context.Context, c *ledger.Card) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (id, user_id, name, brand, position)
		VALUES (?, ?, ?, ?, (SELECT COUNT(*) FROM cards WHERE user_id = ?))`,
		c.ID, c.UserID, c.Name, c.Brand, c.UserID)
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	return nil
}
