package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/repository"
	"go.uber.org/zap"
)

type StudentService struct {
	repo   repository.StudentRepository
	logger *zap.Logger
}

func NewStudentService(repo repository.StudentRepository, logger *zap.Logger) (*StudentService, error) {
	if repo == nil {
		return nil, fmt.Errorf("student repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}, nil
}

// Add stores a new student under the next free numeric id.
func (s *StudentService) Add(ctx context.Context, student domain.Student) (*domain.Student, error) {
	student.Name = strings.TrimSpace(student.Name)
	if err := student.Validate(); err != nil {
		return nil, err
	}

	students, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	student.ID = nextStudentID(students)
	students[student.ID] = student
	if err := s.repo.Save(ctx, students); err != nil {
		return nil, err
	}

	s.logger.Info("student added", zap.String("studentId", student.ID))
	return &student, nil
}

// List returns all students ordered by id.
func (s *StudentService) List(ctx context.Context) ([]domain.Student, error) {
	students, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Student, 0, len(students))
	for _, student := range students {
		out = append(out, student)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessStudentID(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *StudentService) Update(ctx context.Context, id string, patch domain.StudentPatch) (*domain.Student, error) {
	students, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	student, ok := students[id]
	if !ok {
		return nil, fmt.Errorf("%w: student %q", domain.ErrNotFound, id)
	}

	patch.Apply(&student)
	students[id] = student
	if err := s.repo.Save(ctx, students); err != nil {
		return nil, err
	}

	s.logger.Info("student updated", zap.String("studentId", id))
	return &student, nil
}

func (s *StudentService) Delete(ctx context.Context, id string) error {
	students, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if _, ok := students[id]; !ok {
		return fmt.Errorf("%w: student %q", domain.ErrNotFound, id)
	}

	delete(students, id)
	if err := s.repo.Save(ctx, students); err != nil {
		return err
	}

	s.logger.Info("student deleted", zap.String("studentId", id))
	return nil
}

// nextStudentID starts at len+1 and skips ids left in use after deletions.
func nextStudentID(students map[string]domain.Student) string {
	next := len(students) + 1
	for {
		id := strconv.Itoa(next)
		if _, taken := students[id]; !taken {
			return id
		}
		next++
	}
}

func lessStudentID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
