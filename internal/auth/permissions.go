package auth

import (
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

// PermissionAdmin is the single permission name this core distinguishes:
// everything else in the service only cares whether a user administers the
// instance.
const PermissionAdmin = "ADMIN"

// rolePermissions maps role names to the permission names they grant.
var rolePermissions = map[string][]string{
	entities.RoleAdminName: {PermissionAdmin},
	entities.RoleBasicName: {},
}

// PermissionResolver answers owner/admin questions about a user id.
type PermissionResolver struct {
	db *database.Database
}

func NewPermissionResolver(db *database.Database) *PermissionResolver {
	return &PermissionResolver{db: db}
}

// IsAdmin reports whether the user carries the owner flag or the Admin role.
func (p *PermissionResolver) IsAdmin(userID string) (bool, error) {
	user, err := p.db.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	if user.Owner {
		return true, nil
	}
	return p.db.UserHasRole(userID, entities.RoleAdminName)
}

// UserPermissions returns the sorted permission names derived from the
// user's role membership. Unknown and disabled users get an empty set, never
// an error.
func (p *PermissionResolver) UserPermissions(userID string) []string {
	user, err := p.db.GetUserByID(userID)
	if err != nil || !user.Enabled {
		return []string{}
	}

	seen := map[string]bool{}
	if user.Owner {
		seen[PermissionAdmin] = true
	}

	roles, err := p.db.RoleNamesForUser(userID)
	if err == nil {
		for _, role := range roles {
			for _, perm := range rolePermissions[role] {
				seen[perm] = true
			}
		}
	}

	permissions := make([]string, 0, len(seen))
	for perm := range seen {
		permissions = append(permissions, perm)
	}
	sort.Strings(permissions)
	return permissions
}
