package db

import (
	"context"
	"errors"

	"reconledger/internal/domain"

	"gorm.io/gorm"
)

// Journal pairs a current-state table S with its append-only history E.
// Every mutation of S goes through Record so the state change and its
// history entries commit or roll back together.
type Journal[S any, E any] struct {
	db    *gorm.DB
	order string
}

func NewJournal[S any, E any](db *gorm.DB, order string) *Journal[S, E] {
	return &Journal[S, E]{db: db, order: order}
}

// Record runs mutate inside a transaction and appends the entries it
// returns. The appended entries come back with their generated keys.
func (j *Journal[S, E]) Record(ctx context.Context, mutate func(tx *gorm.DB) ([]E, error)) ([]E, error) {
	if j.db == nil {
		return nil, errDBUnavailable
	}
	var appended []E
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries, err := mutate(tx)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}
		appended = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

// State reads one current-state row.
func (j *Journal[S, E]) State(ctx context.Context, query string, args ...any) (S, error) {
	var state S
	if j.db == nil {
		return state, errDBUnavailable
	}
	err := j.db.WithContext(ctx).Where(query, args...).Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return state, domain.ErrNotFound
	}
	return state, err
}

// Entries reads history rows in journal order.
func (j *Journal[S, E]) Entries(ctx context.Context, query string, args ...any) ([]E, error) {
	if j.db == nil {
		return nil, errDBUnavailable
	}
	var entries []E
	if err := j.db.WithContext(ctx).Where(query, args...).Order(j.order).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
