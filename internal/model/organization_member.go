package model

import (
	"time"

	"github.com/google/uuid"
)

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleEditor MemberRole = "editor"
	RoleMember MemberRole = "member"
)

type OrganizationMember struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex:idx_org_member" json:"organization_id"`
	UserID         uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex:idx_org_member" json:"user_id"`
	Role           MemberRole `gorm:"size:16;not null" json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
