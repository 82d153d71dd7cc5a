package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID   int64  `gorm:"primaryKey"`
	Code string `gorm:"uniqueIndex"`
}

func TestNewTestIsIsolated(t *testing.T) {
	first, err := NewTest()
	require.NoError(t, err)
	second, err := NewTest()
	require.NoError(t, err)

	require.NoError(t, first.AutoMigrate(&widget{}))
	require.NoError(t, first.Create(&widget{ID: 1, Code: "a"}).Error)

	assert.False(t, second.Migrator().HasTable(&widget{}))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	conn, err := NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))

	require.NoError(t, conn.Create(&widget{ID: 1, Code: "a"}).Error)
	dupErr := conn.Create(&widget{ID: 2, Code: "a"}).Error
	require.Error(t, dupErr)
	assert.True(t, IsDuplicateKeyErr(dupErr))

	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
