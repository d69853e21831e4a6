package database

import (
	"fmt"
	"testing"

	"spnd/config"
	"spnd/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(name string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
}

func TestOpen_MigratesAndSeeds(t *testing.T) {
	db, err := Open(memoryConfig(t.Name()))
	require.NoError(t, err)
	defer Close(db)

	var expenseCats []models.ExpenseCategory
	require.NoError(t, db.Order("sort").Find(&expenseCats).Error)
	require.Len(t, expenseCats, len(models.GetCategories()))
	assert.Equal(t, models.CategoryFood, expenseCats[0].Name)

	var sharedBudgetCat models.ExpenseCategory
	require.NoError(t, db.Where("name = ?", models.CategorySharedBudget).First(&sharedBudgetCat).Error)
	assert.Equal(t, "#0ea5e9", sharedBudgetCat.Color)

	var incomeCount int64
	db.Model(&models.IncomeCategory{}).Count(&incomeCount)
	assert.Equal(t, int64(5), incomeCount)

	assert.True(t, db.Migrator().HasTable(&models.SharedBudgetParticipant{}))
}

func TestMigrate_SeedIsIdempotent(t *testing.T) {
	db, err := Open(memoryConfig(t.Name()))
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db))

	var count int64
	db.Model(&models.ExpenseCategory{}).Count(&count)
	assert.Equal(t, int64(len(models.GetCategories())), count)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
