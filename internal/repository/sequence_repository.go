package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NextInvoiceSequence increments the invoice counter for prefix and returns the new value.
// The counter row is created on first use, starting after the highest invoice number already
// stored under that prefix.
func (s *GormStore) NextInvoiceSequence(ctx context.Context, prefix string) (int64, error) {
	name := "invoice:" + prefix
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bumped, err := bumpSequence(tx, name)
		if err != nil {
			return err
		}
		if !bumped {
			start, err := highestInvoiceNumber(tx, prefix)
			if err != nil {
				return err
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&sequenceRecord{Name: name, Value: start + 1})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// created concurrently by another process
				if _, err := bumpSequence(tx, name); err != nil {
					return err
				}
			}
		}
		var rec sequenceRecord
		if err := tx.First(&rec, "name = ?", name).Error; err != nil {
			return err
		}
		next = rec.Value
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "next invoice sequence %s", prefix)
	}
	return next, nil
}

func bumpSequence(tx *gorm.DB, name string) (bool, error) {
	res := tx.Model(&sequenceRecord{}).
		Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + 1"))
	return res.RowsAffected > 0, res.Error
}

func highestInvoiceNumber(tx *gorm.DB, prefix string) (int64, error) {
	var numbers []string
	err := tx.Model(&jobCardRecord{}).
		Where("invoice_number LIKE ?", prefix+"-%").
		Pluck("invoice_number", &numbers).Error
	if err != nil {
		return 0, err
	}
	var highest int64
	for _, n := range numbers {
		v, err := strconv.ParseInt(strings.TrimPrefix(n, prefix+"-"), 10, 64)
		if err == nil && v > highest {
			highest = v
		}
	}
	return highest, nil
}
