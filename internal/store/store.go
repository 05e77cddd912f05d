// Package store implements StateStore: the sole authority on per-app
// AppRecord persistence, atomic, serialized, and queryable (spec §4.7).
//
// Grounded on the teacher's internal/engine/store.go in full — DSN
// pragmas (busy_timeout, journal_mode=WAL) so every pooled connection
// gets them, SetMaxOpenConns(4) so SQLite's single-writer limitation
// queues at the Go level, and idempotent `ALTER TABLE ADD COLUMN`
// migrations that ignore the duplicate-column driver error — and on
// original_source/App/Core/P08_StateManager.py (schema shape, upsert
// semantics, threading.Lock()-class mutex around every write).
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/apphost/apphost/internal/apherr"
)

// Status is one of the AppRecord.status values enumerated in spec §4.7.
type Status string

const (
	StatusUnknown    Status = "UNKNOWN"
	StatusInstalling Status = "INSTALLING"
	StatusInstalled  Status = "INSTALLED"
	StatusStarting   Status = "STARTING"
	StatusRunning    Status = "RUNNING"
	StatusStopping   Status = "STOPPING"
	StatusError      Status = "ERROR"
)

// transitions is the FSM table from spec §4.7: state -> allowed next
// states. ERROR is listed for every state except UNKNOWN and ERROR itself.
var transitions = map[Status][]Status{
	StatusUnknown:    {StatusInstalling},
	StatusInstalling: {StatusInstalled, StatusError},
	StatusInstalled:  {StatusStarting, StatusError},
	StatusStarting:   {StatusRunning, StatusError},
	StatusRunning:    {StatusStopping, StatusError},
	StatusStopping:   {StatusInstalled, StatusError},
	StatusError:      {StatusInstalling},
}

func allowedTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Record is AppRecord (spec §3): one row per managed app.
type Record struct {
	AppName         string
	Status          Status
	InstallPath     string
	EnvironmentName string
	ProcessPID      *int
	TunnelURL       *string
	ConfigBlob      string
	ErrorMessage    *string
	InstalledAt     time.Time
	UpdatedAt       time.Time
}

// Store is the process-wide StateStore singleton (spec §9 "Global
// state"): a single on-disk database file, guarded by a process-wide
// mutex, every write inside a transaction.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apherr.New(apherr.StateStoreError, "store.Open", dbPath, err)
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, apherr.New(apherr.StateStoreError, "store.Open", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS applications (
			app_name         TEXT PRIMARY KEY NOT NULL,
			status           TEXT NOT NULL DEFAULT 'UNKNOWN',
			install_path     TEXT,
			environment_name TEXT,
			installed_at     TIMESTAMP,
			updated_at       TIMESTAMP,
			process_pid      INTEGER,
			tunnel_url       TEXT,
			config_data      TEXT,
			error_message    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_app_status ON applications(status);
	`)
	if err != nil {
		return err
	}

	// Idempotent migrations, following the teacher's "alter, then ignore
	// duplicate-column errors" idiom for columns added after initial
	// release.
	alterStmts := []string{
		"ALTER TABLE applications ADD COLUMN config_data TEXT",
	}
	for _, stmt := range alterStmts {
		s.db.Exec(stmt)
	}
	return nil
}

// Add upserts app_name with status INSTALLING and fresh timestamps (spec
// P8: re-adding an existing app resets it to INSTALLING — the documented
// two-installs-race semantic in §5).
func (s *Store) Add(appName, installPath string) error {
	if appName == "" {
		return apherr.New(apherr.InvalidInput, "store.Add", appName, fmt.Errorf("app_name must be non-empty"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.Add", appName, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO applications (app_name, status, install_path, installed_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(app_name) DO UPDATE SET
			status = excluded.status,
			install_path = excluded.install_path,
			installed_at = excluded.installed_at,
			updated_at = excluded.updated_at,
			process_pid = NULL,
			tunnel_url = NULL,
			error_message = NULL
	`, appName, string(StatusInstalling), installPath, now, now)
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.Add", appName, err)
	}
	return apherrWrap("store.Add", appName, tx.Commit())
}

// Remove deletes app_name's record, returning whether a row existed.
func (s *Store) Remove(appName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM applications WHERE app_name = ?`, appName)
	if err != nil {
		return false, apherr.New(apherr.StateStoreError, "store.Remove", appName, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Fields carries the optional columns SetStatus may update, per spec
// §4.7's allowed-fields list.
type Fields struct {
	EnvironmentName *string
	ProcessPID      *int
	TunnelURL       *string
	ConfigBlob      *string
	ErrorMessage    *string
}

// SetStatus validates the FSM transition, applies it plus any Fields, and
// enforces invariants I2/I3 (pid/url presence tied to status) atomically.
func (s *Store) SetStatus(appName string, newStatus Status, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.SetStatus", appName, err)
	}
	defer tx.Rollback()

	var currentStr string
	var currentPID sql.NullInt64
	err = tx.QueryRow(`SELECT status, process_pid FROM applications WHERE app_name = ?`, appName).Scan(&currentStr, &currentPID)
	if err == sql.ErrNoRows {
		return apherr.New(apherr.NotFound, "store.SetStatus", appName, fmt.Errorf("app not found"))
	}
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.SetStatus", appName, err)
	}
	current := Status(currentStr)

	if !allowedTransition(current, newStatus) {
		return apherr.New(apherr.InvalidTransition, "store.SetStatus", fmt.Sprintf("%s -> %s", current, newStatus), fmt.Errorf("invalid transition"))
	}

	now := time.Now().UTC()

	// I2: process_pid is kept only in STARTING/RUNNING/STOPPING; entering
	// one of them without a pid keeps the recorded one (if any), and every
	// other status clears it.
	var pid interface{}
	switch newStatus {
	case StatusStarting, StatusRunning, StatusStopping:
		if fields.ProcessPID != nil {
			pid = *fields.ProcessPID
		} else if currentPID.Valid {
			pid = currentPID.Int64
		}
	default:
		pid = nil
	}

	// I3: tunnel_url present only when RUNNING.
	var tunnelURL interface{}
	if newStatus == StatusRunning && fields.TunnelURL != nil {
		tunnelURL = *fields.TunnelURL
	}

	setClauses := "status = ?, updated_at = ?, process_pid = ?, tunnel_url = ?"
	args := []interface{}{string(newStatus), now, pid, tunnelURL}

	if fields.EnvironmentName != nil {
		setClauses += ", environment_name = ?"
		args = append(args, *fields.EnvironmentName)
	}
	if fields.ConfigBlob != nil {
		setClauses += ", config_data = ?"
		args = append(args, *fields.ConfigBlob)
	}
	if fields.ErrorMessage != nil {
		setClauses += ", error_message = ?"
		args = append(args, *fields.ErrorMessage)
	} else if newStatus != StatusError {
		setClauses += ", error_message = NULL"
	}

	args = append(args, appName)
	_, err = tx.Exec(fmt.Sprintf(`UPDATE applications SET %s WHERE app_name = ?`, setClauses), args...)
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.SetStatus", appName, err)
	}

	return apherrWrap("store.SetStatus", appName, tx.Commit())
}

// SetTunnel is a convenience wrapper that writes tunnel_url without
// changing status; it fails if the app is absent or not RUNNING (I3).
func (s *Store) SetTunnel(appName, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE applications SET tunnel_url = ?, updated_at = ? WHERE app_name = ? AND status = ?`,
		url, time.Now().UTC(), appName, string(StatusRunning))
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.SetTunnel", appName, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apherr.New(apherr.NotFound, "store.SetTunnel", appName, fmt.Errorf("app not found or not running"))
	}
	return nil
}

// SetConfigBlob updates config_data without touching status, used by
// LibraryOps.SetConfig to keep the on-disk config.json and the state
// record's mirror in sync (spec §4.9).
func (s *Store) SetConfigBlob(appName, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE applications SET config_data = ?, updated_at = ? WHERE app_name = ?`,
		blob, time.Now().UTC(), appName)
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.SetConfigBlob", appName, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apherr.New(apherr.NotFound, "store.SetConfigBlob", appName, fmt.Errorf("app not found"))
	}
	return nil
}

// GetStatus returns the app's current status, or StatusUnknown and false
// if no such app exists.
func (s *Store) GetStatus(appName string) (Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var statusStr string
	err := s.db.QueryRow(`SELECT status FROM applications WHERE app_name = ?`, appName).Scan(&statusStr)
	if err == sql.ErrNoRows {
		return StatusUnknown, false, nil
	}
	if err != nil {
		return StatusUnknown, false, apherr.New(apherr.StateStoreError, "store.GetStatus", appName, err)
	}
	return Status(statusStr), true, nil
}

// Get returns the full record for appName, or nil if absent.
func (s *Store) Get(appName string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT app_name, status, install_path, environment_name, installed_at, updated_at, process_pid, tunnel_url, config_data, error_message FROM applications WHERE app_name = ?`, appName)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apherr.New(apherr.StateStoreError, "store.Get", appName, err)
	}
	return rec, nil
}

// All returns every record.
func (s *Store) All() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT app_name, status, install_path, environment_name, installed_at, updated_at, process_pid, tunnel_url, config_data, error_message FROM applications ORDER BY app_name`)
	if err != nil {
		return nil, apherr.New(apherr.StateStoreError, "store.All", "", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ByStatus returns every record with the given status.
func (s *Store) ByStatus(status Status) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT app_name, status, install_path, environment_name, installed_at, updated_at, process_pid, tunnel_url, config_data, error_message FROM applications WHERE status = ? ORDER BY app_name`, string(status))
	if err != nil {
		return nil, apherr.New(apherr.StateStoreError, "store.ByStatus", string(status), err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// Cleanup deletes ERROR records older than 30 days and compacts storage
// (spec §4.7).
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	_, err := s.db.Exec(`DELETE FROM applications WHERE status = ? AND updated_at < ?`, string(StatusError), cutoff)
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.Cleanup", "", err)
	}
	_, err = s.db.Exec(`VACUUM`)
	if err != nil {
		return apherr.New(apherr.StateStoreError, "store.Cleanup", "", err)
	}
	return nil
}

func apherrWrap(op, detail string, err error) error {
	if err == nil {
		return nil
	}
	return apherr.New(apherr.StateStoreError, op, detail, err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var statusStr string
	var pid sql.NullInt64
	var tunnelURL sql.NullString
	var configData sql.NullString
	var errMsg sql.NullString
	var installPath sql.NullString
	var envName sql.NullString
	var installedAt, updatedAt sql.NullTime

	err := row.Scan(&rec.AppName, &statusStr, &installPath, &envName, &installedAt, &updatedAt, &pid, &tunnelURL, &configData, &errMsg)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(statusStr)
	if installPath.Valid {
		rec.InstallPath = installPath.String
	}
	if envName.Valid {
		rec.EnvironmentName = envName.String
	}
	if installedAt.Valid {
		rec.InstalledAt = installedAt.Time
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	if pid.Valid {
		p := int(pid.Int64)
		rec.ProcessPID = &p
	}
	if tunnelURL.Valid {
		u := tunnelURL.String
		rec.TunnelURL = &u
	}
	if configData.Valid {
		rec.ConfigBlob = configData.String
	}
	if errMsg.Valid {
		m := errMsg.String
		rec.ErrorMessage = &m
	}
	return &rec, nil
}

func scanAll(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apherr.New(apherr.StateStoreError, "store.scanAll", "", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
