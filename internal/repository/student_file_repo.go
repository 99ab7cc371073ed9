package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/fsutil"
	"go.uber.org/zap"
)

const studentFileMode = 0o644

// StudentRepository loads and stores the whole student map at once.
type StudentRepository interface {
	Load(ctx context.Context) (map[string]domain.Student, error)
	Save(ctx context.Context, students map[string]domain.Student) error
}

// FileStudentRepo keeps students in one JSON object keyed by id.
type FileStudentRepo struct {
	path   string
	logger *zap.Logger
}

func NewFileStudentRepo(path string, logger *zap.Logger) *FileStudentRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStudentRepo{path: path, logger: logger}
}

// Load treats a missing or unreadable file as an empty store.
func (r *FileStudentRepo) Load(ctx context.Context) (map[string]domain.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.Student{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read student store %s: %w", r.path, err)
	}

	students := map[string]domain.Student{}
	if err := json.Unmarshal(data, &students); err != nil {
		r.logger.Warn("student store is corrupt, starting empty",
			zap.String("path", r.path),
			zap.Error(err),
		)
		return map[string]domain.Student{}, nil
	}
	// A literal null decodes to a nil map.
	if students == nil {
		students = map[string]domain.Student{}
	}

	for id, student := range students {
		student.ID = id
		students[id] = student
	}
	return students, nil
}

func (r *FileStudentRepo) Save(ctx context.Context, students map[string]domain.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(students, "", "    ")
	if err != nil {
		return fmt.Errorf("encode student store: %w", err)
	}
	if err := fsutil.WriteFileAtomic(r.path, data, studentFileMode); err != nil {
		return fmt.Errorf("write student store %s: %w", r.path, err)
	}
	return nil
}
