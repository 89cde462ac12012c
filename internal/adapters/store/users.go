package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tombot/internal/core/domain"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT NOT NULL UNIQUE,
	primary_nick TEXT UNIQUE,
	timeout INTEGER NOT NULL DEFAULT 7200,
	lastactive INTEGER NOT NULL DEFAULT 0,
	message TEXT,
	admin INTEGER NOT NULL DEFAULT 0,
	bday TEXT
);
CREATE TABLE IF NOT EXISTS nicks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	address TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nicks_address ON nicks(address);
`

const userColumns = `id, address, primary_nick, timeout, lastactive, message, admin, bday`

// Users keeps users and their nicknames in sqlite.
type Users struct {
	db *sql.DB
}

func NewUsers(ctx context.Context, db *sql.DB) (*Users, error) {
	if _, err := db.ExecContext(ctx, usersSchema); err != nil {
		return nil, fmt.Errorf("failed to create user tables: %w", err)
	}

	return &Users{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                   domain.User
		nick, message, bday sql.NullString
		timeout, lastactive int64
	)

	err := row.Scan(&u.ID, &u.Address, &nick, &timeout, &lastactive, &message, &u.Admin, &bday)
	if err != nil {
		return domain.User{}, err
	}

	u.PrimaryNick = nick.String
	u.LastMessage = message.String
	u.Birthday = bday.String
	u.Timeout = time.Duration(timeout) * time.Second
	u.LastActive = time.Unix(lastactive, 0)

	return u, nil
}

func (s *Users) queryUser(ctx context.Context, where string, arg any) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrUserNotFound, arg)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}

	return u, nil
}

func (s *Users) queryUsers(ctx context.Context, where string) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// ResolveAliasToAddress checks primary nicks first, then extra nicks.
func (s *Users) ResolveAliasToAddress(ctx context.Context, alias string) (string, error) {
	queries := []string{
		`SELECT address FROM users WHERE lower(primary_nick) = lower(?)`,
		`SELECT address FROM nicks WHERE name = lower(?)`,
	}

	for _, query := range queries {
		var address string
		err := s.db.QueryRowContext(ctx, query, alias).Scan(&address)
		if err == nil {
			return address, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to resolve nick: %w", err)
		}
	}

	return "", fmt.Errorf("%w: %s", domain.ErrNickNotFound, alias)
}

func (s *Users) ResolveAddressToAlias(ctx context.Context, address string) (string, error) {
	u, err := s.User(ctx, address)
	if err != nil {
		return "", err
	}

	if u.PrimaryNick == "" {
		return "", fmt.Errorf("%w: %s has no nick", domain.ErrUserNotFound, address)
	}

	return u.PrimaryNick, nil
}

func (s *Users) User(ctx context.Context, address string) (domain.User, error) {
	return s.queryUser(ctx, `address = ?`, address)
}

func (s *Users) LookupUser(ctx context.Context, idOrNick string) (domain.User, error) {
	if id, err := strconv.ParseInt(idOrNick, 10, 64); err == nil {
		return s.queryUser(ctx, `id = ?`, id)
	}

	return s.queryUser(ctx, `lower(primary_nick) = lower(?)`, idOrNick)
}

func (s *Users) NamelessSeen(ctx context.Context) ([]domain.User, error) {
	return s.queryUsers(ctx, `primary_nick IS NULL AND message IS NOT NULL`)
}

func (s *Users) Birthdays(ctx context.Context) ([]domain.User, error) {
	return s.queryUsers(ctx, `bday IS NOT NULL AND bday != '' AND primary_nick IS NOT NULL`)
}

func (s *Users) RegisterUser(ctx context.Context, id int64, nick string) error {
	nick, err := domain.NormalizeNick(nick)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE users SET primary_nick = ? WHERE id = ?`, nick, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrNickTaken, nick)
	}
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	return expectRow(res, fmt.Errorf("%w: id %d", domain.ErrUserNotFound, id))
}

func (s *Users) SetBirthday(ctx context.Context, id int64, birthday string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET bday = ? WHERE id = ?`, birthday, id)
	if err != nil {
		return fmt.Errorf("failed to set birthday: %w", err)
	}

	return expectRow(res, fmt.Errorf("%w: id %d", domain.ErrUserNotFound, id))
}

func (s *Users) Touch(ctx context.Context, address, message string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (address, lastactive, message, timeout)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			lastactive = excluded.lastactive,
			message = excluded.message
	`, address, at.Unix(), message, int64(domain.DefaultTimeout/time.Second))
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	return nil
}

func (s *Users) SetTimeout(ctx context.Context, id int64, timeout time.Duration) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET timeout = ? WHERE id = ?`,
		int64(timeout/time.Second), id)
	if err != nil {
		return fmt.Errorf("failed to set timeout: %w", err)
	}

	return expectRow(res, fmt.Errorf("%w: id %d", domain.ErrUserNotFound, id))
}

func (s *Users) Nicks(ctx context.Context, address string) ([]domain.Nick, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address FROM nicks WHERE address = ? ORDER BY id`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query nicks: %w", err)
	}
	defer rows.Close()

	var nicks []domain.Nick
	for rows.Next() {
		var n domain.Nick
		if err := rows.Scan(&n.ID, &n.Name, &n.Address); err != nil {
			return nil, fmt.Errorf("failed to scan nick: %w", err)
		}
		nicks = append(nicks, n)
	}

	return nicks, rows.Err()
}

func (s *Users) AddNick(ctx context.Context, address, nick string) error {
	nick, err := domain.NormalizeNick(nick)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO nicks (name, address) VALUES (?, ?)`, nick, address)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrNickTaken, nick)
	}
	if err != nil {
		return fmt.Errorf("failed to add nick: %w", err)
	}

	return nil
}

func (s *Users) RemoveNick(ctx context.Context, address, idOrName string) error {
	var (
		n   domain.Nick
		row *sql.Row
	)
	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		row = s.db.QueryRowContext(ctx, `SELECT id, name, address FROM nicks WHERE id = ?`, id)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT id, name, address FROM nicks WHERE name = lower(?)`, idOrName)
	}

	err := row.Scan(&n.ID, &n.Name, &n.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNickNotFound, idOrName)
	}
	if err != nil {
		return fmt.Errorf("failed to query nick: %w", err)
	}

	if n.Address != address {
		return fmt.Errorf("%w: %s", domain.ErrNotOwner, n.Name)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM nicks WHERE id = ?`, n.ID); err != nil {
		return fmt.Errorf("failed to remove nick: %w", err)
	}

	return nil
}

func (s *Users) IsAdmin(ctx context.Context, address string) (bool, error) {
	u, err := s.User(ctx, address)
	if err != nil {
		return false, err
	}

	return u.Admin, nil
}

// SetAdmin flags address as admin, creating the user when needed.
func (s *Users) SetAdmin(ctx context.Context, address string, admin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (address, admin) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET admin = excluded.admin
	`, address, admin)
	if err != nil {
		return fmt.Errorf("failed to set admin: %w", err)
	}

	return nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
