package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
	"gorm.io/gorm"
)

type RunListParams struct {
	Status   *domain.RunStatus
	Page     int
	PageSize int
}

type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) error
	AppendDelivery(ctx context.Context, delivery *domain.Delivery) error
	Finish(ctx context.Context, id string, status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, params RunListParams) ([]domain.Run, int64, error)
	ListDeliveries(ctx context.Context, runID string, failedOnly bool) ([]domain.Delivery, error)
}

type GormRunRepo struct {
	db *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{db: db}
}

func (r *GormRunRepo) Create(ctx context.Context, run *domain.Run) error {
	model := runModelFromDomain(run)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if run != nil {
		*run = *runModelToDomain(model)
	}
	return nil
}

func (r *GormRunRepo) AppendDelivery(ctx context.Context, delivery *domain.Delivery) error {
	model := deliveryModelFromDomain(delivery)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if delivery != nil {
		*delivery = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormRunRepo) Finish(
	ctx context.Context,
	id string,
	status domain.RunStatus,
	summary domain.RunSummary,
	runErr *string,
	finishedAt time.Time,
) error {
	result := r.db.WithContext(ctx).
		Model(&RunModel{}).
		Where("id = ?", id).
		Updates(finishUpdates(status, summary, runErr, finishedAt))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// finishUpdates leaves total_recipients alone: it holds the planned total
// from Create, which an aborted run never reaches.
func finishUpdates(status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) map[string]any {
	return map[string]any{
		"status":        status,
		"success_count": summary.Successful,
		"failure_count": summary.Failed,
		"error":         runErr,
		"finished_at":   finishedAt,
	}
}

func (r *GormRunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	var model RunModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return runModelToDomain(&model), nil
}

func (r *GormRunRepo) List(ctx context.Context, params RunListParams) ([]domain.Run, int64, error) {
	query := r.db.WithContext(ctx).Model(&RunModel{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)

	var models []RunModel
	err := query.
		Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	runs := make([]domain.Run, 0, len(models))
	for i := range models {
		runs = append(runs, *runModelToDomain(&models[i]))
	}
	return runs, total, nil
}

func (r *GormRunRepo) ListDeliveries(ctx context.Context, runID string, failedOnly bool) ([]domain.Delivery, error) {
	query := r.db.WithContext(ctx).Where("run_id = ?", runID)
	if failedOnly {
		query = query.Where("success = ?", false)
	}

	var models []DeliveryModel
	if err := query.Order("position ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

func normalizePage(page, pageSize int) (int, int) {
	page = max(page, 1)
	if pageSize < 1 {
		pageSize = 50
	}
	return page, min(pageSize, 100)
}
