package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gopherai-interview/internal/model"
	"gopherai-interview/internal/platform/sqlite"
)

// newTestDB opens a private in-memory sqlite database with the session
// schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.InterviewSession{}, &model.OrganizationMember{}, &model.SessionEvent{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
