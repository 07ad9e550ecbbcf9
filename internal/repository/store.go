package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// JobCardStore persists job cards. SaveIfVersion is the only way to change a stored card: it
// writes the card with version expected+1 if and only if the stored version equals expected.
type JobCardStore interface {
	Create(ctx context.Context, card *models.JobCard) error
	Load(ctx context.Context, id uuid.UUID) (*models.JobCard, error)
	SaveIfVersion(ctx context.Context, card *models.JobCard, expected int64) (*models.JobCard, error)
	List(ctx context.Context, filter ListFilter) ([]*models.JobCard, error)
}

// CatalogStore is the shared capacity view. Reserve and Release adjust the center's active
// job count and the technician's open job count together.
type CatalogStore interface {
	Snapshot(ctx context.Context) (*models.CatalogSnapshot, error)
	Technician(ctx context.Context, id string) (*models.Technician, error)
	Reserve(ctx context.Context, centerID, technicianID string) error
	Release(ctx context.Context, centerID, technicianID string) error
	RateCard(ctx context.Context) (*models.RateCard, error)
	SetAvailability(ctx context.Context, technicianID string, availability models.Availability) error
}

// Transactor runs fn with stores bound to one atomic unit: either every write made through
// them is applied or none is.
type Transactor interface {
	InTx(ctx context.Context, fn func(cards JobCardStore, catalog CatalogStore) error) error
}

// Store bundles the three roles; both implementations satisfy it.
type Store interface {
	JobCardStore
	CatalogStore
	Transactor
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses     []models.JobStatus
	CustomerID   string
	TechnicianID string
	OldestFirst  bool
	Limit        int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

func (f ListFilter) matches(card *models.JobCard) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if card.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CustomerID != "" && card.CustomerID != f.CustomerID {
		return false
	}
	if f.TechnicianID != "" && (card.Assignment == nil || card.Assignment.TechnicianID != f.TechnicianID) {
		return false
	}
	return true
}
