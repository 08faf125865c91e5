// Package backup archives the world save and the server ini.
package backup

import (
	"archive/tar"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Archive layout: the save directory lives under savesPrefix and the ini
// file sits at the root under its own name.
const savesPrefix = "saves"

var ErrNotFound = errors.New("backup not found")

type Backup struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	db       *sql.DB
	dir      string
	savesDir string
	iniPath  string
	log      *zap.Logger
	now      func() time.Time
}

// NewService stores archives under dir. savesDir is the world save and
// iniPath the server settings file.
func NewService(db *sql.DB, dir, savesDir, iniPath string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, dir: dir, savesDir: savesDir, iniPath: iniPath, log: log, now: time.Now}
}

// Create writes a tar.gz of the save directory and the ini.
func (s *Service) Create(ctx context.Context) (*Backup, error) {
	if _, err := os.Stat(s.savesDir); err != nil {
		return nil, fmt.Errorf("save directory: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	now := s.now().UTC()
	id := uuid.New().String()[:8]
	filename := fmt.Sprintf("%s-%s.tar.gz", now.Format("20060102-150405"), id)
	path := filepath.Join(s.dir, filename)

	if err := s.writeArchive(path); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("create archive: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	b := &Backup{ID: id, Filename: filename, SizeBytes: info.Size(), CreatedAt: now}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (id, filename, size_bytes, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Filename, b.SizeBytes, b.CreatedAt,
	); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save backup record: %w", err)
	}
	s.log.Info("backup created", zap.String("id", id), zap.Int64("bytes", b.SizeBytes))
	return b, nil
}

// List returns every backup, newest first.
func (s *Service) List(ctx context.Context) ([]Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, size_bytes, created_at FROM backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	backups := []Backup{}
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.Filename, &b.SizeBytes, &b.CreatedAt); err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

// FilePath returns the archive path for a backup id.
func (s *Service) FilePath(ctx context.Context, id string) (string, error) {
	var filename string
	err := s.db.QueryRowContext(ctx, `SELECT filename FROM backups WHERE id = ?`, id).Scan(&filename)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filename), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	path, err := s.FilePath(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	return err
}

// Restore replaces the save directory and the ini with the archived ones.
// The server should be stopped first.
func (s *Service) Restore(ctx context.Context, id string) error {
	path, err := s.FilePath(ctx, id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(s.savesDir); err != nil {
		return fmt.Errorf("clear save directory: %w", err)
	}
	if err := os.MkdirAll(s.savesDir, 0755); err != nil {
		return fmt.Errorf("recreate save directory: %w", err)
	}
	if err := s.extractArchive(path); err != nil {
		return err
	}
	s.log.Info("backup restored", zap.String("id", id))
	return nil
}

func (s *Service) writeArchive(dest string) error {
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()

	gw := gzip.NewWriter(file)
	tw := tar.NewWriter(gw)

	err = filepath.Walk(s.savesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.savesDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return addFile(tw, path, filepath.ToSlash(filepath.Join(savesPrefix, rel)), info)
	})
	if err != nil {
		return err
	}

	if info, err := os.Stat(s.iniPath); err == nil {
		if err := addFile(tw, s.iniPath, filepath.Base(s.iniPath), info); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func addFile(tw *tar.Writer, path, name string, info os.FileInfo) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// target maps an archive entry to its destination on disk.
func (s *Service) target(name string) (string, error) {
	name = filepath.FromSlash(name)
	if name == filepath.Base(s.iniPath) {
		return s.iniPath, nil
	}
	rel, ok := strings.CutPrefix(name, savesPrefix+string(filepath.Separator))
	if !ok {
		return "", fmt.Errorf("unexpected entry in archive: %s", name)
	}
	target := filepath.Join(s.savesDir, rel)
	if !strings.HasPrefix(target, filepath.Clean(s.savesDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, nil
}

func (s *Service) extractArchive(src string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := s.target(header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}
