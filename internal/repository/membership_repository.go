package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gopherai-interview/internal/model"
)

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// RoleOf reads the membership row on every call; ok is false for non-members.
func (r *MembershipRepository) RoleOf(ctx context.Context, orgID, userID uuid.UUID) (model.MemberRole, bool, error) {
	var member model.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query organization member failed: %w", err)
	}
	return member.Role, true, nil
}

func (r *MembershipRepository) Upsert(ctx context.Context, member *model.OrganizationMember) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(member).Error
	if err != nil {
		return fmt.Errorf("upsert organization member failed: %w", err)
	}
	return nil
}

func (r *MembershipRepository) Remove(ctx context.Context, orgID, userID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Delete(&model.OrganizationMember{}).Error; err != nil {
		return fmt.Errorf("delete organization member failed: %w", err)
	}
	return nil
}

type memberKey struct {
	org  uuid.UUID
	user uuid.UUID
}

// MemoryMembershipStore pairs with MemorySessionStore.
type MemoryMembershipStore struct {
	mu    sync.RWMutex
	roles map[memberKey]model.MemberRole
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{roles: make(map[memberKey]model.MemberRole)}
}

func (s *MemoryMembershipStore) RoleOf(ctx context.Context, orgID, userID uuid.UUID) (model.MemberRole, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[memberKey{org: orgID, user: userID}]
	return role, ok, nil
}

func (s *MemoryMembershipStore) Upsert(_ context.Context, member *model.OrganizationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[memberKey{org: member.OrganizationID, user: member.UserID}] = member.Role
	return nil
}

func (s *MemoryMembershipStore) Remove(_ context.Context, orgID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, memberKey{org: orgID, user: userID})
	return nil
}
