package licensestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// licenseModel is the gorm row backing a License.
type licenseModel struct {
	ID           string    `gorm:"primaryKey"`
	LicenseKey   string    `gorm:"uniqueIndex;not null"`
	CustomerName string    `gorm:"not null"`
	Notes        string    `gorm:"not null"`
	IsActive     bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (licenseModel) TableName() string { return "cnw_licenses" }

func newLicenseModel(lic *License) *licenseModel {
	return &licenseModel{
		ID:           lic.ID,
		LicenseKey:   lic.LicenseKey,
		CustomerName: lic.CustomerName,
		Notes:        lic.Notes,
		IsActive:     lic.IsActive,
		CreatedAt:    lic.CreatedAt,
	}
}

func (m *licenseModel) toLicense() *License {
	return &License{
		ID:           m.ID,
		LicenseKey:   m.LicenseKey,
		CustomerName: m.CustomerName,
		Notes:        m.Notes,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
}

// activationModel is the gorm row backing an Activation.
type activationModel struct {
	ID            string `gorm:"primaryKey"`
	LicenseID     string `gorm:"index:idx_cnw_activations_license_machine;not null"`
	MachineID     string `gorm:"index:idx_cnw_activations_license_machine;not null"`
	ActivationKey string `gorm:"not null"`
	IsActive      bool   `gorm:"not null"`
	ActivatedAt   time.Time
	DeactivatedAt *time.Time
}

func (activationModel) TableName() string { return "cnw_activations" }

func newActivationModel(act *Activation) *activationModel {
	return &activationModel{
		ID:            act.ID,
		LicenseID:     act.LicenseID,
		MachineID:     act.MachineID,
		ActivationKey: act.ActivationKey,
		IsActive:      act.IsActive,
		ActivatedAt:   act.ActivatedAt,
		DeactivatedAt: act.DeactivatedAt,
	}
}

func (m *activationModel) toActivation() *Activation {
	return &Activation{
		ID:            m.ID,
		LicenseID:     m.LicenseID,
		MachineID:     m.MachineID,
		ActivationKey: m.ActivationKey,
		IsActive:      m.IsActive,
		ActivatedAt:   m.ActivatedAt,
		DeactivatedAt: m.DeactivatedAt,
	}
}

// SQLiteStore implements Store using an embedded SQLite database. It
// suits single-binary deployments where running a database server is
// not wanted.
//
// The single-active-license invariant is enforced by a partial unique
// index on is_active, mirroring the PostgreSQL schema.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens the SQLite database at path, creating it if
// necessary, and migrates the schema. Use ":memory:" for an ephemeral
// store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&licenseModel{}, &activationModel{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	// AutoMigrate cannot express a partial index.
	err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_cnw_licenses_single_active
		ON cnw_licenses (is_active) WHERE is_active = 1
	`).Error
	if err != nil {
		return nil, fmt.Errorf("create single-active index: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertLicense(ctx context.Context, lic *License) error {
	if err := s.db.WithContext(ctx).Create(newLicenseModel(lic)).Error; err != nil {
		return fmt.Errorf("insert license: %w", mapGormError(err))
	}
	return nil
}

func (s *SQLiteStore) LicenseByID(ctx context.Context, id string) (*License, error) {
	return s.findLicense(ctx, "id = ?", id)
}

func (s *SQLiteStore) LicenseByKey(ctx context.Context, keyHex string) (*License, error) {
	return s.findLicense(ctx, "license_key = ?", keyHex)
}

func (s *SQLiteStore) ActiveLicense(ctx context.Context) (*License, error) {
	return s.findLicense(ctx, "is_active = ?", true)
}

func (s *SQLiteStore) findLicense(ctx context.Context, query string, args ...any) (*License, error) {
	var m licenseModel
	err := s.db.WithContext(ctx).Where(query, args...).First(&m).Error
	if err != nil {
		return nil, fmt.Errorf("find license: %w", mapGormError(err))
	}
	return m.toLicense(), nil
}

func (s *SQLiteStore) SetLicenseActive(ctx context.Context, id string, active bool) error {
	result := s.db.WithContext(ctx).Model(&licenseModel{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("update license: %w", mapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update license: %w", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Licenses(ctx context.Context) ([]License, error) {
	var models []licenseModel
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	var licenses []License
	for i := range models {
		licenses = append(licenses, *models[i].toLicense())
	}
	return licenses, nil
}

func (s *SQLiteStore) InsertActivation(ctx context.Context, act *Activation) error {
	if err := s.db.WithContext(ctx).Create(newActivationModel(act)).Error; err != nil {
		return fmt.Errorf("insert activation: %w", mapGormError(err))
	}
	return nil
}

func (s *SQLiteStore) ActivationByID(ctx context.Context, id string) (*Activation, error) {
	var m activationModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		return nil, fmt.Errorf("find activation: %w", mapGormError(err))
	}
	return m.toActivation(), nil
}

func (s *SQLiteStore) Activations(ctx context.Context, licenseID string) ([]Activation, error) {
	return s.findActivations(ctx, "license_id = ?", licenseID)
}

func (s *SQLiteStore) MachineActivations(ctx context.Context, licenseID, machineID string) ([]Activation, error) {
	return s.findActivations(ctx, "license_id = ? AND machine_id = ?", licenseID, machineID)
}

func (s *SQLiteStore) findActivations(ctx context.Context, query string, args ...any) ([]Activation, error) {
	var models []activationModel
	err := s.db.WithContext(ctx).Where(query, args...).Order("activated_at").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	var activations []Activation
	for i := range models {
		activations = append(activations, *models[i].toActivation())
	}
	return activations, nil
}

func (s *SQLiteStore) DeactivateMachine(ctx context.Context, licenseID, machineID string, at time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&activationModel{}).
		Where("license_id = ? AND machine_id = ? AND is_active = ?", licenseID, machineID, true).
		Updates(map[string]any{"is_active": false, "deactivated_at": at})
	if result.Error != nil {
		return 0, fmt.Errorf("deactivate machine: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close(_ context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// mapGormError converts gorm-level failures to store sentinels where a
// sentinel applies.
func mapGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
