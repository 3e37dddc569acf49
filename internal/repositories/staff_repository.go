package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"giberno-chat-service/internal/models"
)

// StaffRepository resolves which managers are relevant for a chat target.
type StaffRepository interface {
	RelevantManagers(ctx context.Context, target models.ChatTarget) ([]int, error)
	IsRelevantManager(ctx context.Context, target models.ChatTarget, userID int) (bool, error)
}

// StaffRepo is a sqlx implementation of StaffRepository.
type StaffRepo struct {
	db *sqlx.DB
}

// NewStaffRepo constructs a StaffRepo.
func NewStaffRepo(db *sqlx.DB) *StaffRepo {
	return &StaffRepo{db: db}
}

// RelevantManagers returns staff of the target's shop. For a vacancy target the
// shop is resolved through the vacancy; a chat without a target has no managers.
func (r *StaffRepo) RelevantManagers(ctx context.Context, target models.ChatTarget) ([]int, error) {
	var ids []int
	switch target.Kind {
	case models.TargetShop:
		err := r.db.SelectContext(ctx, &ids,
			`SELECT user_id FROM shop_staff WHERE shop_id=$1 ORDER BY user_id`, target.ID)
		return ids, err
	case models.TargetVacancy:
		err := r.db.SelectContext(ctx, &ids,
			`SELECT ss.user_id FROM shop_staff ss
             JOIN vacancies v ON v.shop_id = ss.shop_id
             WHERE v.id=$1 ORDER BY ss.user_id`, target.ID)
		return ids, err
	default:
		return nil, nil
	}
}

// IsRelevantManager reports whether the user has staff access to the target.
func (r *StaffRepo) IsRelevantManager(ctx context.Context, target models.ChatTarget, userID int) (bool, error) {
	var exists bool
	switch target.Kind {
	case models.TargetShop:
		err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM shop_staff WHERE shop_id=$1 AND user_id=$2)`, target.ID, userID)
		return exists, err
	case models.TargetVacancy:
		err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM shop_staff ss
                JOIN vacancies v ON v.shop_id = ss.shop_id
                WHERE v.id=$1 AND ss.user_id=$2)`, target.ID, userID)
		return exists, err
	default:
		return false, nil
	}
}
