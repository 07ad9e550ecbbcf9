package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// lockRows makes a snapshot taken inside a transaction hold row locks until commit so two
// planners cannot both pick the same least-loaded technician. SQLite has no row locks and
// serializes writers on its own.
func (s *GormStore) lockRows(q *gorm.DB) *gorm.DB {
	if s.inTx && s.db.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// Snapshot reads every center and technician ordered by id.
func (s *GormStore) Snapshot(ctx context.Context) (*models.CatalogSnapshot, error) {
	var centers []serviceCenterRecord
	if err := s.lockRows(s.db.WithContext(ctx)).Order("id asc").Find(&centers).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	var techs []technicianRecord
	if err := s.lockRows(s.db.WithContext(ctx)).Order("id asc").Find(&techs).Error; err != nil {
		return nil, errors.WithStack(err)
	}

	snap := &models.CatalogSnapshot{
		Centers:     make([]models.ServiceCenter, 0, len(centers)),
		Technicians: make([]models.Technician, 0, len(techs)),
	}
	for _, c := range centers {
		snap.Centers = append(snap.Centers, models.ServiceCenter{
			ID:         c.ID,
			Name:       c.Name,
			Location:   models.GeoPoint{Lat: c.Lat, Lon: c.Lon},
			Capacity:   c.Capacity,
			ActiveJobs: c.ActiveJobs,
		})
	}
	for i := range techs {
		t, err := techs[i].toModel()
		if err != nil {
			return nil, err
		}
		snap.Technicians = append(snap.Technicians, t)
	}
	return snap, nil
}

// Technician returns one technician by id.
func (s *GormStore) Technician(ctx context.Context, id string) (*models.Technician, error) {
	var rec technicianRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("technician %s not found", id))
		}
		return nil, errors.WithStack(err)
	}
	t, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Reserve takes one capacity slot at the center and one open job for the technician. The
// capacity check is part of the UPDATE so it cannot overbook even without a lock.
func (s *GormStore) Reserve(ctx context.Context, centerID, technicianID string) error {
	res := s.db.WithContext(ctx).Model(&serviceCenterRecord{}).
		Where("id = ? AND active_jobs < capacity", centerID).
		UpdateColumn("active_jobs", gorm.Expr("active_jobs + ?", 1))
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NoCapacity(fmt.Sprintf("service center %s is full or unknown", centerID))
	}

	res = s.db.WithContext(ctx).Model(&technicianRecord{}).
		Where("id = ? AND service_center_id = ?", technicianID, centerID).
		UpdateColumn("open_jobs", gorm.Expr("open_jobs + ?", 1))
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(fmt.Sprintf("technician %s not found at %s", technicianID, centerID))
	}
	return nil
}

// Release gives back what Reserve took. Counters never go below zero.
func (s *GormStore) Release(ctx context.Context, centerID, technicianID string) error {
	if err := s.db.WithContext(ctx).Model(&serviceCenterRecord{}).
		Where("id = ? AND active_jobs > 0", centerID).
		UpdateColumn("active_jobs", gorm.Expr("active_jobs - ?", 1)).Error; err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(s.db.WithContext(ctx).Model(&technicianRecord{}).
		Where("id = ? AND open_jobs > 0", technicianID).
		UpdateColumn("open_jobs", gorm.Expr("open_jobs - ?", 1)).Error)
}

// RateCard merges configured defaults with the price tables.
func (s *GormStore) RateCard(ctx context.Context) (*models.RateCard, error) {
	var parts []partPriceRecord
	if err := s.db.WithContext(ctx).Find(&parts).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	var labor []laborRateRecord
	if err := s.db.WithContext(ctx).Find(&labor).Error; err != nil {
		return nil, errors.WithStack(err)
	}

	rc := s.defaults
	rc.PartPrices = make(map[string]decimal.Decimal, len(parts))
	for _, p := range parts {
		rc.PartPrices[p.Name] = p.Price
	}
	rc.RepairTypeRates = make(map[string]decimal.Decimal, len(labor))
	for _, l := range labor {
		rc.RepairTypeRates[l.RepairType] = l.Rate
	}
	return &rc, nil
}

// Seed upserts the catalog. Existing load counters are preserved so a restart does not
// forget jobs already in flight.
func (s *GormStore) Seed(ctx context.Context, seed CatalogSeed) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range seed.Centers {
			rec := serviceCenterRecord{ID: c.ID, Name: c.Name, Lat: c.Location.Lat, Lon: c.Location.Lon, Capacity: c.Capacity, ActiveJobs: c.ActiveJobs}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "lat", "lon", "capacity"}),
			}).Create(&rec).Error; err != nil {
				return errors.Wrapf(err, "seed center %s", c.ID)
			}
		}
		for _, t := range seed.Technicians {
			specs, err := json.Marshal(t.Specializations)
			if err != nil {
				return errors.WithStack(err)
			}
			rec := technicianRecord{
				ID:              t.ID,
				ServiceCenterID: t.ServiceCenterID,
				Name:            t.Name,
				Specializations: datatypes.JSON(specs),
				OpenJobs:        t.OpenJobs,
				Availability:    string(t.Availability),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"service_center_id", "name", "specializations", "availability"}),
			}).Create(&rec).Error; err != nil {
				return errors.Wrapf(err, "seed technician %s", t.ID)
			}
		}
		for name, price := range seed.Rates.PartPrices {
			rec := partPriceRecord{Name: models.CatalogKey(name), Price: price}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
				return errors.Wrapf(err, "seed part %s", name)
			}
		}
		for repairType, rate := range seed.Rates.RepairTypeRates {
			rec := laborRateRecord{RepairType: models.CatalogKey(repairType), Rate: rate}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
				return errors.Wrapf(err, "seed labor rate %s", repairType)
			}
		}
		return nil
	})
}

// SetAvailability updates a technician's availability.
func (s *GormStore) SetAvailability(ctx context.Context, technicianID string, availability models.Availability) error {
	res := s.db.WithContext(ctx).Model(&technicianRecord{}).
		Where("id = ?", technicianID).
		UpdateColumn("availability", string(availability))
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(fmt.Sprintf("technician %s not found", technicianID))
	}
	return nil
}
