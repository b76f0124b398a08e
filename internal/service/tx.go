package service

import (
	"context"

	"gorm.io/gorm"
)

// transact runs fn in a database transaction. A nil db runs fn directly with
// a nil tx; repository fakes bound by WithTx must tolerate that.
func transact(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}
