package tenancy_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/barangaykms/barangaykms/internal/tenancy"
)

func idPtr(v int64) *int64 { return &v }

func principal(role tenancy.Role, barangay *int64) tenancy.Principal {
	return tenancy.Principal{Role: role, BarangayID: barangay, Identity: "u-1"}
}

func TestCanModifyByRole(t *testing.T) {
	cases := []struct {
		role tenancy.Role
		want bool
	}{
		{tenancy.RoleSuperAdmin, true},
		{tenancy.RoleBarangayAdmin, true},
		{tenancy.RoleBarangaySecretary, true},
		{tenancy.RoleBarangayStaff, true},
		{tenancy.RoleCouncilMember, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			require.Equal(t, tc.want, tenancy.CanModify(principal(tc.role, idPtr(3))))
		})
	}
}

func TestCouncilMemberDeniedEveryAction(t *testing.T) {
	p := principal(tenancy.RoleCouncilMember, idPtr(3))
	actions := []tenancy.Action{
		tenancy.ActionCreate,
		tenancy.ActionUpdate,
		tenancy.ActionArchive,
		tenancy.ActionApprove,
		tenancy.ActionReject,
	}
	for _, action := range actions {
		d := tenancy.AuthorizeWrite(p, action, idPtr(3))
		require.False(t, d.Allowed, "action %s", action)
		require.Equal(t, tenancy.ReasonInsufficientRole, d.Reason)
		require.ErrorIs(t, d.Err(), tenancy.ErrPermissionDenied)
	}
}

func TestScopeForRead(t *testing.T) {
	cases := []struct {
		name string
		p    tenancy.Principal
		want tenancy.Scope
	}{
		{"super admin unrestricted", principal(tenancy.RoleSuperAdmin, nil), tenancy.AllScope()},
		{"super admin with barangay still unrestricted", principal(tenancy.RoleSuperAdmin, idPtr(4)), tenancy.AllScope()},
		{"admin scoped to own barangay", principal(tenancy.RoleBarangayAdmin, idPtr(5)), tenancy.BarangayScope(5)},
		{"staff scoped to own barangay", principal(tenancy.RoleBarangayStaff, idPtr(9)), tenancy.BarangayScope(9)},
		{"council member scoped to own barangay", principal(tenancy.RoleCouncilMember, idPtr(2)), tenancy.BarangayScope(2)},
		{"misconfigured admin denied", principal(tenancy.RoleBarangayAdmin, nil), tenancy.DenyScope()},
		{"misconfigured council member denied", principal(tenancy.RoleCouncilMember, nil), tenancy.DenyScope()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tenancy.ScopeForRead(tc.p))
		})
	}
}

func TestAuthorizeCreateAssignsPrincipalBarangay(t *testing.T) {
	// Client-supplied target barangay never matters on create.
	p := principal(tenancy.RoleBarangaySecretary, idPtr(3))
	d := tenancy.AuthorizeWrite(p, tenancy.ActionCreate, idPtr(9))
	require.True(t, d.Allowed)
	require.NotNil(t, d.BarangayID)
	require.Equal(t, int64(3), *d.BarangayID)
}

func TestAuthorizeCreateWithoutBarangay(t *testing.T) {
	p := principal(tenancy.RoleBarangayAdmin, nil)
	d := tenancy.AuthorizeWrite(p, tenancy.ActionCreate, nil)
	require.False(t, d.Allowed)
	require.Equal(t, tenancy.ReasonNoBarangay, d.Reason)
}

func TestSuperAdminCreatesGlobalRecord(t *testing.T) {
	p := principal(tenancy.RoleSuperAdmin, nil)
	d := tenancy.AuthorizeWrite(p, tenancy.ActionCreate, idPtr(9))
	require.True(t, d.Allowed)
	require.Nil(t, d.BarangayID)
}

func TestOwnershipCheck(t *testing.T) {
	cases := []struct {
		name   string
		p      tenancy.Principal
		target *int64
		want   bool
	}{
		{"same barangay allowed", principal(tenancy.RoleBarangayAdmin, idPtr(5)), idPtr(5), true},
		{"other barangay denied", principal(tenancy.RoleBarangayAdmin, idPtr(5)), idPtr(7), false},
		{"global record denied for admin", principal(tenancy.RoleBarangayAdmin, idPtr(5)), nil, false},
		{"tenant-less admin denied", principal(tenancy.RoleBarangayStaff, nil), idPtr(5), false},
		{"super admin any barangay", principal(tenancy.RoleSuperAdmin, nil), idPtr(7), true},
		{"super admin global record", principal(tenancy.RoleSuperAdmin, nil), nil, true},
	}
	actions := []tenancy.Action{tenancy.ActionUpdate, tenancy.ActionArchive, tenancy.ActionApprove, tenancy.ActionReject}
	for _, tc := range cases {
		for _, action := range actions {
			t.Run(tc.name+"/"+string(action), func(t *testing.T) {
				d := tenancy.AuthorizeWrite(tc.p, action, tc.target)
				require.Equal(t, tc.want, d.Allowed)
				if !tc.want {
					require.Equal(t, tenancy.ReasonCrossTenant, d.Reason)
				}
			})
		}
	}
}

func TestPermissionErrorsAreDistinguishable(t *testing.T) {
	roleDenied := tenancy.AuthorizeWrite(principal(tenancy.RoleCouncilMember, idPtr(3)), tenancy.ActionArchive, idPtr(3)).Err()
	crossTenant := tenancy.AuthorizeWrite(principal(tenancy.RoleBarangayStaff, idPtr(3)), tenancy.ActionUpdate, idPtr(4)).Err()

	require.ErrorIs(t, roleDenied, tenancy.ErrPermissionDenied)
	require.ErrorIs(t, crossTenant, tenancy.ErrPermissionDenied)

	var pe *tenancy.PermissionError
	require.True(t, errors.As(roleDenied, &pe))
	require.Equal(t, tenancy.ReasonInsufficientRole, pe.Reason)
	require.True(t, errors.As(crossTenant, &pe))
	require.Equal(t, tenancy.ReasonCrossTenant, pe.Reason)
}
