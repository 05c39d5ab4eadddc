package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/larriantoniy/tg_session_web/internal/domain"
	"github.com/larriantoniy/tg_session_web/internal/ports"
)

// FileStore хранит по одному файлу на выданную сессию в плоском каталоге.
// Разные имена пишутся без блокировок.
type FileStore struct {
	dir    string
	log    *slog.Logger
	mirror ports.CredentialMirror
}

func NewFileStore(dir string, log *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("sessions dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir sessions dir: %w", err)
	}
	return &FileStore{dir: dir, log: log}, nil
}

// WithMirror включает дополнительную копию каждого сохранённого файла.
func (s *FileStore) WithMirror(m ports.CredentialMirror) *FileStore {
	s.mirror = m
	return s
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Persist(ctx context.Context, accountID int64, issuedAt time.Time, session string) (string, error) {
	name := domain.CredentialFilename(accountID, issuedAt)
	path := filepath.Join(s.dir, name)

	// TODO: same account within the same second overwrites the previous file; needs a product decision on suffixing.
	if _, err := os.Stat(path); err == nil {
		s.log.Warn("credential file already exists, overwriting", "filename", name, "account_id", accountID)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(session); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, name, []byte(session)); err != nil {
			s.log.Warn("credential mirror failed", "filename", name, "error", err)
		}
	}
	return name, nil
}

// Open отдаёт файл сессии для скачивания. Посторонние имена (в т.ч. с ../) - ErrNotFound.
func (s *FileStore) Open(filename string) (io.ReadSeekCloser, time.Time, error) {
	if _, ok := domain.ParseCredentialFilename(filename); !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, domain.ErrNotFound
		}
		return nil, time.Time{}, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, time.Time{}, err
	}
	return f, st.ModTime(), nil
}

// Record ничего не делает: каталог сам по себе индекс.
func (s *FileStore) Record(ctx context.Context, ref domain.CredentialRef) error {
	return nil
}

// Recent сканирует каталог, новые сверху.
func (s *FileStore) Recent(ctx context.Context, limit int) ([]domain.CredentialRef, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CredentialRef, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ref, ok := domain.ParseCredentialFilename(e.Name()); ok {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].Filename > out[j].Filename
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
