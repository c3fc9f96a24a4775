package repository

import (
	"context"

	"github.com/smallbiznis/stripesync/internal/provisioning/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var profile domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, email, display_name, role, created_at, updated_at
		 FROM profiles WHERE id = ?`,
		id,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == "" {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, profile *domain.Profile) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO profiles (id, org_id, email, display_name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		profile.ID,
		profile.OrgID,
		profile.Email,
		profile.DisplayName,
		profile.Role,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
