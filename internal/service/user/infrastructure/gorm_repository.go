// internal/service/user/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercado/internal/saga"
	"mercado/internal/service/user/domain"
)

const mysqlDuplicateEntry = 1062

// ErrUsernameTaken 表示用户名已被占用。
var ErrUsernameTaken = errors.New("username already taken")

// UserModel 是 users 表的 GORM 模型。
type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	Email        string `gorm:"size:255"`
	PasswordHash string `gorm:"size:128;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string {
	return "users"
}

func toDomainUser(m *UserModel) *domain.User {
	return &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) (*GormUserRepository, error) {
	if err := db.AutoMigrate(&UserModel{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate user tables")
	}
	return &GormUserRepository{db: db}, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	model := UserModel{
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if (errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry) ||
			errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}
		return errors.Wrap(err, "create user")
	}
	*user = *toDomainUser(&model)
	return nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &saga.NotFoundError{Resource: "user", ID: strconv.FormatUint(uint64(id), 10)}
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return toDomainUser(&model), nil
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &saga.NotFoundError{Resource: "user", ID: username}
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user by username")
	}
	return toDomainUser(&model), nil
}

func (r *GormUserRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	var models []UserModel
	err := r.db.WithContext(ctx).Order("id").Limit(limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	users := make([]domain.User, 0, len(models))
	for i := range models {
		users = append(users, *toDomainUser(&models[i]))
	}
	return users, nil
}

func (r *GormUserRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&UserModel{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete user")
	}
	if res.RowsAffected == 0 {
		return &saga.NotFoundError{Resource: "user", ID: strconv.FormatUint(uint64(id), 10)}
	}
	return nil
}

func (r *GormUserRepository) Save(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"email":         user.Email,
			"password_hash": user.PasswordHash,
		}).Error
	return errors.Wrap(err, "save user")
}
