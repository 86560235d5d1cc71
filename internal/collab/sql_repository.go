package collab

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DriverName maps a persistence.driver config value to the database/sql
// driver name registered by its blank import, following the teacher's
// database-type-to-driver-name mapping.
func DriverName(driver string) string {
	switch driver {
	case "postgres", "postgresql":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return driver
	}
}

// SQLRepository is a database/sql-backed Repository, selected by
// config.Persistence.Driver. It is the production-shaped alternative to
// MemoryRepository.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// NewSQLRepository opens db (driver already selected via DriverName) and
// ensures the schema exists.
func NewSQLRepository(driver, dsn string) (*SQLRepository, error) {
	driverName := DriverName(driver)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	repo := &SQLRepository{db: db, driver: driverName}
	if err := repo.createSchema(); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) Close() error { return r.db.Close() }

func (r *SQLRepository) createSchema() error {
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.driver == "postgres" {
		autoIncrement = "SERIAL PRIMARY KEY"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			name VARCHAR(32) UNIQUE NOT NULL,
			safe_name VARCHAR(32) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			email VARCHAR(255),
			permissions INTEGER DEFAULT 0,
			restricted BOOLEAN DEFAULT FALSE,
			activated BOOLEAN DEFAULT TRUE,
			preferred_mode SMALLINT DEFAULT 0,
			friend_only_dms BOOLEAN DEFAULT FALSE,
			country VARCHAR(2) DEFAULT ''
		)`, autoIncrement),
		`CREATE TABLE IF NOT EXISTS friends (
			user_id INTEGER NOT NULL,
			friend_id INTEGER NOT NULL,
			PRIMARY KEY (user_id, friend_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stats (
			user_id INTEGER NOT NULL,
			mode SMALLINT NOT NULL,
			ranked_score BIGINT DEFAULT 0,
			accuracy REAL DEFAULT 0,
			playcount INTEGER DEFAULT 0,
			total_score BIGINT DEFAULT 0,
			pp SMALLINT DEFAULT 0,
			PRIMARY KEY (user_id, mode)
		)`,
		`CREATE TABLE IF NOT EXISTS infringements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			reason TEXT,
			autoban BOOLEAN DEFAULT FALSE,
			until TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS silences (
			user_id INTEGER PRIMARY KEY,
			until TIMESTAMP NOT NULL,
			reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS rank_history (
			user_id INTEGER NOT NULL,
			mode SMALLINT NOT NULL,
			rank INTEGER NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLRepository) scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.SafeName, &u.PasswordHash, &u.Email,
		&u.Permissions, &u.Restricted, &u.Activated, &u.PreferredMode,
		&u.FriendOnlyDMs, &u.Country); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *SQLRepository) UserByID(ctx context.Context, id int32) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, safe_name, password_hash, email,
		permissions, restricted, activated, preferred_mode, friend_only_dms, country
		FROM users WHERE id = ?`, id)
	u, err := r.scanUser(row)
	if err != nil {
		return nil, err
	}
	u.Friends, err = r.friendsOf(ctx, id)
	return u, err
}

func (r *SQLRepository) UserByName(ctx context.Context, name string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, safe_name, password_hash, email,
		permissions, restricted, activated, preferred_mode, friend_only_dms, country
		FROM users WHERE safe_name = ?`, SafeName(name))
	u, err := r.scanUser(row)
	if err != nil {
		return nil, err
	}
	u.Friends, err = r.friendsOf(ctx, u.ID)
	return u, err
}

func (r *SQLRepository) friendsOf(ctx context.Context, userID int32) ([]int32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT friend_id FROM friends WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SQLRepository) UpdateUser(ctx context.Context, u *User) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET name = ?, safe_name = ?,
		password_hash = ?, email = ?, permissions = ?, restricted = ?, activated = ?,
		preferred_mode = ?, friend_only_dms = ?, country = ? WHERE id = ?`,
		u.Name, SafeName(u.Name), u.PasswordHash, u.Email, u.Permissions,
		u.Restricted, u.Activated, u.PreferredMode, u.FriendOnlyDMs, u.Country, u.ID)
	return err
}

func (r *SQLRepository) FetchStats(ctx context.Context, userID int32, mode uint8) (*Stats, error) {
	row := r.db.QueryRowContext(ctx, `SELECT user_id, mode, ranked_score, accuracy,
		playcount, total_score, pp FROM stats WHERE user_id = ? AND mode = ?`, userID, mode)
	var s Stats
	if err := row.Scan(&s.UserID, &s.Mode, &s.RankedScore, &s.Accuracy, &s.Playcount,
		&s.TotalScore, &s.PP); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLRepository) CreateStats(ctx context.Context, userID int32, mode uint8) (*Stats, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO stats (user_id, mode) VALUES (?, ?)`, userID, mode)
	if err != nil {
		return nil, err
	}
	return &Stats{UserID: userID, Mode: mode}, nil
}

func (r *SQLRepository) UpdateStats(ctx context.Context, s *Stats) error {
	_, err := r.db.ExecContext(ctx, `UPDATE stats SET ranked_score = ?, accuracy = ?,
		playcount = ?, total_score = ?, pp = ? WHERE user_id = ? AND mode = ?`,
		s.RankedScore, s.Accuracy, s.Playcount, s.TotalScore, s.PP, s.UserID, s.Mode)
	return err
}

func (r *SQLRepository) HideScores(ctx context.Context, userID int32) error {
	// Score storage itself is out of scope (spec.md §1); this collaborator
	// surface exists so a real scores table elsewhere can be told to hide
	// them, once wired.
	return nil
}

func (r *SQLRepository) UpdateClients(ctx context.Context, userID int32, adaptersMD5 string) error {
	return nil
}

func (r *SQLRepository) CreateInfringement(ctx context.Context, inf Infringement) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO infringements (user_id, reason, autoban, until)
		VALUES (?, ?, ?, ?)`, inf.UserID, inf.Reason, inf.Autoban, inf.Until)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE users SET restricted = TRUE WHERE id = ?`, inf.UserID)
	return err
}

func (r *SQLRepository) UpdateRankHistory(ctx context.Context, userID int32, mode uint8, rank int32) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO rank_history (user_id, mode, rank) VALUES (?, ?, ?)`,
		userID, mode, rank)
	return err
}

func (r *SQLRepository) ActiveSilence(ctx context.Context, userID int32) (time.Time, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT until FROM silences WHERE user_id = ?`, userID)
	var until time.Time
	if err := row.Scan(&until); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if time.Now().After(until) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

func (r *SQLRepository) SetSilence(ctx context.Context, userID int32, until time.Time, reason string) error {
	switch r.driver {
	case "postgres":
		_, err := r.db.ExecContext(ctx, `INSERT INTO silences (user_id, until, reason) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET until = $2, reason = $3`, userID, until, reason)
		return err
	default:
		_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO silences (user_id, until, reason)
			VALUES (?, ?, ?)`, userID, until, reason)
		return err
	}
}
