package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-interview/internal/model"
	"gopherai-interview/internal/repository"
)

func TestOrganizationMembership_Allows(t *testing.T) {
	cases := []struct {
		role    model.MemberRole
		read    bool
		write   bool
		delete  bool
		restore bool
	}{
		{model.RoleOwner, true, true, true, true},
		{model.RoleAdmin, true, true, true, true},
		{model.RoleEditor, true, true, false, false},
		{model.RoleMember, true, false, false, false},
		{model.MemberRole("guest"), false, false, false, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			m := OrganizationMembership{OrganizationID: uuid.New(), Role: tc.role, IsMember: true}
			assert.Equal(t, tc.read, m.Allows(ActionRead))
			assert.Equal(t, tc.write, m.Allows(ActionWrite))
			assert.Equal(t, tc.delete, m.Allows(ActionDelete))
			assert.Equal(t, tc.restore, m.Allows(ActionRestore))
		})
	}

	nonMember := OrganizationMembership{OrganizationID: uuid.New(), Role: model.RoleOwner}
	assert.False(t, nonMember.Allows(ActionRead))
}

func TestPersonalOwnership_Allows(t *testing.T) {
	owner := uuid.New()
	assert.True(t, PersonalOwnership{OwnerID: owner, ActorID: owner}.Allows(ActionRestore))
	assert.False(t, PersonalOwnership{OwnerID: owner, ActorID: uuid.New()}.Allows(ActionRead))
	assert.False(t, PersonalOwnership{OwnerID: uuid.Nil, ActorID: uuid.Nil}.Allows(ActionRead))
}

type failingResolver struct{}

func (failingResolver) RoleOf(context.Context, uuid.UUID, uuid.UUID) (model.MemberRole, bool, error) {
	return "", false, errors.New("directory unavailable")
}

func TestAccessPolicy_Authorize(t *testing.T) {
	ctx := context.Background()
	members := repository.NewMemoryMembershipStore()
	policy := NewAccessPolicy(members)

	orgID := uuid.New()
	admin := uuid.New()
	require.NoError(t, members.Upsert(ctx, &model.OrganizationMember{OrganizationID: orgID, UserID: admin, Role: model.RoleAdmin}))

	orgSession := &model.InterviewSession{ID: uuid.New(), OrganizationID: &orgID, UserID: uuid.New()}
	require.NoError(t, policy.Authorize(ctx, admin, orgSession, ActionRestore))

	err := policy.Authorize(ctx, uuid.New(), orgSession, ActionRead)
	assert.ErrorIs(t, err, ErrForbidden)

	// Membership is looked up on every call.
	require.NoError(t, members.Remove(ctx, orgID, admin))
	assert.ErrorIs(t, policy.Authorize(ctx, admin, orgSession, ActionRestore), ErrForbidden)

	// The creator of an organization session has no special rights.
	assert.ErrorIs(t, policy.Authorize(ctx, orgSession.UserID, orgSession, ActionRead), ErrForbidden)

	personal := &model.InterviewSession{ID: uuid.New(), UserID: admin}
	require.NoError(t, policy.Authorize(ctx, admin, personal, ActionDelete))
	assert.ErrorIs(t, policy.Authorize(ctx, uuid.New(), personal, ActionRead), ErrForbidden)
}

func TestAccessPolicy_ResolverErrors(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	session := &model.InterviewSession{ID: uuid.New(), OrganizationID: &orgID}

	err := NewAccessPolicy(failingResolver{}).Authorize(ctx, uuid.New(), session, ActionRead)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)

	// Without a resolver nobody is a member.
	err = NewAccessPolicy(nil).AuthorizeOrganization(ctx, uuid.New(), orgID, ActionRead)
	assert.ErrorIs(t, err, ErrForbidden)
}
