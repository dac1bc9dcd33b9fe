package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"options-yield/interfaces"
	"options-yield/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// LocalStorage implements the CalculationStore interface using SQLite
type LocalStorage struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewLocalStorage creates a new local storage service
func NewLocalStorage(dbPath string, logger *logrus.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: NewLogrusLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&models.DBCalculation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.WithField("path", dbPath).Debug("Calculation store ready")

	return &LocalStorage{
		db:     db,
		logger: logger,
	}, nil
}

// SaveCalculation stores a calculation, assigning an ID and timestamp when missing
func (s *LocalStorage) SaveCalculation(record *interfaces.CalculationRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CalculatedAt.IsZero() {
		record.CalculatedAt = time.Now().UTC()
	}

	in, res := record.Input, record.Result
	dbCalc := &models.DBCalculation{
		CalculationID:     record.ID,
		Symbol:            strings.ToUpper(in.Symbol),
		OptionType:        string(in.OptionType),
		StockPrice:        in.StockPrice,
		StrikePrice:       in.StrikePrice,
		PremiumPerShare:   in.PremiumPerShare,
		ExpirationDate:    in.ExpirationDate.String(),
		NumberOfContracts: in.NumberOfContracts,
		OwnsShares:        in.OwnsShares,
		PurchasePrice:     in.PurchasePrice,
		Premium:           res.Premium,
		ReturnOnCapital:   res.ReturnOnCapital,
		DaysToExpiration:  res.DaysToExpiration,
		AnnualizedReturn:  res.AnnualizedReturn,
		CapitalRequired:   res.CapitalRequired,
		CalculatedAt:      record.CalculatedAt,
	}

	if err := s.db.Create(dbCalc).Error; err != nil {
		return fmt.Errorf("failed to save calculation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"id":     record.ID,
		"symbol": dbCalc.Symbol,
		"type":   dbCalc.OptionType,
	}).Debug("Calculation saved")
	return nil
}

// ListCalculations returns the newest calculations first, optionally for one symbol
func (s *LocalStorage) ListCalculations(symbol string, limit int) ([]*interfaces.CalculationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var dbCalcs []*models.DBCalculation

	query := s.db.Model(&models.DBCalculation{})
	if symbol != "" {
		query = query.Where("symbol = ?", strings.ToUpper(symbol))
	}

	result := query.Order("calculated_at DESC").Order("id DESC").Limit(limit).Find(&dbCalcs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", result.Error)
	}

	records := make([]*interfaces.CalculationRecord, 0, len(dbCalcs))
	for _, c := range dbCalcs {
		exp, err := civil.ParseDate(c.ExpirationDate)
		if err != nil {
			s.logger.WithError(err).WithField("id", c.CalculationID).Warn("Skipping calculation with bad expiration date")
			continue
		}

		records = append(records, &interfaces.CalculationRecord{
			ID: c.CalculationID,
			Input: interfaces.PositionInput{
				OptionType:        interfaces.OptionType(c.OptionType),
				StockPrice:        c.StockPrice,
				StrikePrice:       c.StrikePrice,
				PremiumPerShare:   c.PremiumPerShare,
				ExpirationDate:    exp,
				NumberOfContracts: c.NumberOfContracts,
				OwnsShares:        c.OwnsShares,
				PurchasePrice:     c.PurchasePrice,
				Symbol:            c.Symbol,
			},
			Result: interfaces.CalculationResult{
				Premium:          c.Premium,
				PremiumPerShare:  c.PremiumPerShare,
				ReturnOnCapital:  c.ReturnOnCapital,
				DaysToExpiration: c.DaysToExpiration,
				AnnualizedReturn: c.AnnualizedReturn,
				CapitalRequired:  c.CapitalRequired,
			},
			CalculatedAt: c.CalculatedAt,
		})
	}

	return records, nil
}

// CleanupOldData removes calculations older than the specified time
func (s *LocalStorage) CleanupOldData(before time.Time) (int64, error) {
	s.logger.WithField("before", before).Info("Cleaning up old calculations")

	result := s.db.Unscoped().Where("calculated_at < ?", before).Delete(&models.DBCalculation{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old calculations: %w", result.Error)
	}

	s.logger.WithField("deleted", result.RowsAffected).Info("Old calculations cleaned up")
	return result.RowsAffected, nil
}

// Close closes the database connection
func (s *LocalStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
