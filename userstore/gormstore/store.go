package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	goToken "github.com/MrEthical07/goToken"
)

// UserModel is the row read by [Store]. Only the columns the engine needs
// are mapped.
type UserModel struct {
	ID     string `gorm:"column:id;type:varchar(64);primaryKey"`
	Role   string `gorm:"column:role;type:varchar(64);not null;default:''"`
	Active bool   `gorm:"column:active;not null;default:true"`
}

func (UserModel) TableName() string {
	return "users"
}

// Store looks users up in the users table.
type Store struct {
	db *gorm.DB
}

var _ goToken.UserProvider = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenMySQL opens a GORM connection for dsn with query logging silenced.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// FindByID implements goToken.UserProvider. Missing and inactive users both
// report goToken.ErrUserNotFound.
func (s *Store) FindByID(ctx context.Context, userID string) (goToken.User, error) {
	if userID == "" {
		return goToken.User{}, goToken.ErrUserNotFound
	}

	var m UserModel
	err := s.db.WithContext(ctx).
		Select("id", "role", "active").
		Where("id = ?", userID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return goToken.User{}, goToken.ErrUserNotFound
	}
	if err != nil {
		return goToken.User{}, fmt.Errorf("find user: %w", err)
	}
	if !m.Active {
		return goToken.User{}, goToken.ErrUserNotFound
	}
	return goToken.User{ID: m.ID, Role: m.Role}, nil
}

// Migrate creates or updates the users table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&UserModel{})
}
