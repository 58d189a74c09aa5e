package enums

// Role is the actor role asserted by the identity provider.
type Role string

const (
	RoleWorker      Role = "worker"
	RoleStorekeeper Role = "storekeeper"
)

var validRoles = []Role{RoleWorker, RoleStorekeeper}

func (r Role) IsValid() bool {
	return member(validRoles, r)
}

// ParseRole converts raw input into Role.
func ParseRole(value string) (Role, error) {
	return parse(validRoles, "role", value)
}
