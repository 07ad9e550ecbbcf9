package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// GormStore provides persistence for job cards and the catalog on top of gorm.
type GormStore struct {
	db       *gorm.DB
	defaults models.RateCard
	inTx     bool
}

// NewGormStore constructs a store using the provided gorm DB. defaults supplies the rate
// card values that live in configuration rather than in tables.
func NewGormStore(db *gorm.DB, defaults models.RateCard) *GormStore {
	return &GormStore{db: db, defaults: defaults}
}

// InTx runs fn inside a database transaction.
func (s *GormStore) InTx(ctx context.Context, fn func(JobCardStore, CatalogStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &GormStore{db: tx, defaults: s.defaults, inTx: true}
		return fn(txStore, txStore)
	})
}

// Create persists a new job card.
func (s *GormStore) Create(ctx context.Context, card *models.JobCard) error {
	rec, err := toRecord(card)
	if err != nil {
		return err
	}
	return errors.WithStack(s.db.WithContext(ctx).Create(rec).Error)
}

// Load returns the job card by id.
func (s *GormStore) Load(ctx context.Context, id uuid.UUID) (*models.JobCard, error) {
	var rec jobCardRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("job card %s not found", id))
		}
		return nil, errors.WithStack(err)
	}
	return rec.toModel()
}

// SaveIfVersion writes every column of card in one conditional UPDATE guarded by the stored
// version, so a concurrent writer either sees the whole new state or none of it.
func (s *GormStore) SaveIfVersion(ctx context.Context, card *models.JobCard, expected int64) (*models.JobCard, error) {
	next := card.Clone()
	next.Version = expected + 1
	rec, err := toRecord(next)
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).
		Model(rec).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "created_at").
		Updates(rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, apperr.Wrap(apperr.KindConflict, fmt.Sprintf("job card %s collides with a stored unique value", card.ID), res.Error)
		}
		return nil, errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&jobCardRecord{}).Where("id = ?", card.ID).Count(&count).Error; err != nil {
			return nil, errors.WithStack(err)
		}
		if count == 0 {
			return nil, apperr.NotFound(fmt.Sprintf("job card %s not found", card.ID))
		}
		return nil, apperr.Conflict(fmt.Sprintf("job card %s was modified concurrently (expected version %d)", card.ID, expected))
	}
	return next, nil
}

// List returns job cards matching filter ordered by creation time (newest first unless
// OldestFirst is set).
func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]*models.JobCard, error) {
	q := s.db.WithContext(ctx).Model(&jobCardRecord{})
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.TechnicianID != "" {
		q = q.Where("technician_id = ?", filter.TechnicianID)
	}
	if filter.OldestFirst {
		q = q.Order("created_at asc").Order("id asc")
	} else {
		q = q.Order("created_at desc").Order("id asc")
	}

	var recs []jobCardRecord
	if err := q.Limit(filter.limit()).Find(&recs).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	cards := make([]*models.JobCard, 0, len(recs))
	for i := range recs {
		card, err := recs[i].toModel()
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}
