package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gopherai-interview/internal/model"
)

type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

type MembershipResolver interface {
	RoleOf(ctx context.Context, orgID, userID uuid.UUID) (model.MemberRole, bool, error)
}

// Ownership is the actor's relation to a session: either the personal
// owner check or an organization membership.
type Ownership interface {
	Allows(action Action) bool
}

type PersonalOwnership struct {
	OwnerID uuid.UUID
	ActorID uuid.UUID
}

func (o PersonalOwnership) Allows(Action) bool {
	return o.ActorID != uuid.Nil && o.ActorID == o.OwnerID
}

type OrganizationMembership struct {
	OrganizationID uuid.UUID
	Role           model.MemberRole
	IsMember       bool
}

func (m OrganizationMembership) Allows(action Action) bool {
	if !m.IsMember {
		return false
	}
	switch action {
	case ActionRead:
		switch m.Role {
		case model.RoleOwner, model.RoleAdmin, model.RoleEditor, model.RoleMember:
			return true
		}
	case ActionWrite:
		switch m.Role {
		case model.RoleOwner, model.RoleAdmin, model.RoleEditor:
			return true
		}
	case ActionDelete, ActionRestore:
		switch m.Role {
		case model.RoleOwner, model.RoleAdmin:
			return true
		}
	}
	return false
}

// AccessPolicy resolves ownership on every call. Nothing is cached: a member
// removed from an organization loses delete and restore immediately.
type AccessPolicy struct {
	members MembershipResolver
}

func NewAccessPolicy(members MembershipResolver) *AccessPolicy {
	return &AccessPolicy{members: members}
}

func (p *AccessPolicy) Resolve(ctx context.Context, actorID uuid.UUID, session *model.InterviewSession) (Ownership, error) {
	if session.OrganizationID == nil {
		return PersonalOwnership{OwnerID: session.UserID, ActorID: actorID}, nil
	}
	return p.membership(ctx, actorID, *session.OrganizationID)
}

func (p *AccessPolicy) Authorize(ctx context.Context, actorID uuid.UUID, session *model.InterviewSession, action Action) error {
	ownership, err := p.Resolve(ctx, actorID, session)
	if err != nil {
		return err
	}
	if !ownership.Allows(action) {
		return fmt.Errorf("%w: %s on session %s", ErrForbidden, action, session.ID)
	}
	return nil
}

// AuthorizeOrganization checks an action against an organization before any
// session exists, e.g. create and list.
func (p *AccessPolicy) AuthorizeOrganization(ctx context.Context, actorID, orgID uuid.UUID, action Action) error {
	membership, err := p.membership(ctx, actorID, orgID)
	if err != nil {
		return err
	}
	if !membership.Allows(action) {
		return fmt.Errorf("%w: %s in organization %s", ErrForbidden, action, orgID)
	}
	return nil
}

func (p *AccessPolicy) membership(ctx context.Context, actorID, orgID uuid.UUID) (OrganizationMembership, error) {
	if p.members == nil {
		return OrganizationMembership{OrganizationID: orgID}, nil
	}
	role, ok, err := p.members.RoleOf(ctx, orgID, actorID)
	if err != nil {
		return OrganizationMembership{}, fmt.Errorf("resolve membership failed: %w", err)
	}
	return OrganizationMembership{OrganizationID: orgID, Role: role, IsMember: ok}, nil
}
