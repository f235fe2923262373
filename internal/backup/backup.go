// Package backup snapshots the database, encrypts the snapshot and keeps it
// in S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/store"
)

var (
	ErrDisabled = errors.New("backup: not configured")
	ErrRunning  = errors.New("backup: already running")
	ErrNotFound = errors.New("backup: not found")
)

// s3Client is the subset of *s3.Client the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	Prefix     string
	Passphrase string
	// Retention is how long completed backups are kept. Zero keeps them forever.
	Retention time.Duration
}

// Manager creates, prunes and restores encrypted backups.
type Manager struct {
	cfg     Config
	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

// NewManager returns a manager. Without a bucket, credentials and passphrase
// the manager is disabled and every operation returns ErrDisabled.
func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		db:      db,
		backups: bs,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether storage and a passphrase are configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Running reports whether a backup is in progress.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// List returns the most recent backup records.
func (m *Manager) List(limit int) ([]model.Backup, error) {
	return m.backups.List(limit)
}

// Run takes a snapshot, encrypts it and uploads it. The returned record is
// completed on success; on failure the record is marked failed and the error
// is returned alongside it.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil, ErrRunning
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	started := m.now()
	filename := fmt.Sprintf("timenest-%s.db.enc", started.Format("2006-01-02T150405Z"))
	key := filename
	if m.cfg.Prefix != "" {
		key = m.cfg.Prefix + "/" + filename
	}

	record, err := m.backups.Create(filename, key, started)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.upload(ctx, key)
	if err != nil {
		m.logger.Error("backup failed", "id", record.ID, "error", err)
		if markErr := m.backups.MarkFailed(record.ID, err.Error()); markErr != nil {
			m.logger.Error("mark backup failed", "id", record.ID, "error", markErr)
		}
		return m.reload(record), err
	}

	if err := m.backups.MarkCompleted(record.ID, size, m.now()); err != nil {
		return nil, fmt.Errorf("mark backup completed: %w", err)
	}
	m.logger.Info("backup completed", "id", record.ID, "key", key, "bytes", size)
	return m.reload(record), nil
}

func (m *Manager) reload(record *model.Backup) *model.Backup {
	fresh, err := m.backups.GetByID(record.ID)
	if err != nil || fresh == nil {
		return record
	}
	return fresh
}

func (m *Manager) upload(ctx context.Context, key string) (int64, error) {
	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	sealed, err := Encrypt(snapshot, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(sealed)), nil
}

// snapshot writes a consistent copy of the live database with VACUUM INTO
// and returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "timenest-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Prune deletes completed backups older than the retention period, both the
// records and their objects. It returns how many were removed.
func (m *Manager) Prune(ctx context.Context, now time.Time) (int, error) {
	if !m.Enabled() || m.cfg.Retention <= 0 {
		return 0, nil
	}
	keys, err := m.backups.DeleteOlderThan(now.Add(-m.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("delete old backups: %w", err)
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("pruned backups", "count", len(keys))
	}
	return len(keys), nil
}

// Restore downloads and decrypts backup id into a new database file at dst
// and verifies its integrity. dst must not exist.
func (m *Manager) Restore(ctx context.Context, id int64, dst string) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	record, err := m.backups.GetByID(id)
	if err != nil {
		return fmt.Errorf("get backup: %w", err)
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		return ErrNotFound
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	sealed, err := io.ReadAll(result.Body)
	result.Body.Close()
	if err != nil {
		return fmt.Errorf("read download: %w", err)
	}

	plaintext, err := Decrypt(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create restore file: %w", err)
	}
	if _, err := f.Write(plaintext); err != nil {
		f.Close()
		return fmt.Errorf("write restore file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close restore file: %w", err)
	}

	if err := checkIntegrity(ctx, dst); err != nil {
		os.Remove(dst)
		return err
	}
	m.logger.Info("backup restored", "id", id, "path", dst)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
