package enums

// MemberRole is the store-level role carried in access tokens.
type MemberRole string

const (
	MemberRoleOwner   MemberRole = "owner"
	MemberRoleManager MemberRole = "manager"
	MemberRoleStaff   MemberRole = "staff"
	MemberRoleViewer  MemberRole = "viewer"
	// MemberRoleSystem is reserved for service-to-service tokens.
	MemberRoleSystem MemberRole = "system"
)

var memberRoles = []MemberRole{MemberRoleOwner, MemberRoleManager, MemberRoleStaff, MemberRoleViewer, MemberRoleSystem}

func (m MemberRole) String() string { return string(m) }

func (m MemberRole) IsValid() bool { return known(memberRoles, m) }

// CanMutateStock reports whether the role may change on-hand or reserved quantities.
func (m MemberRole) CanMutateStock() bool {
	return m.IsValid() && m != MemberRoleViewer
}

func ParseMemberRole(value string) (MemberRole, error) {
	return parse(memberRoles, "member role", value)
}
