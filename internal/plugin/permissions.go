package plugin

import (
	"fmt"
	"slices"

	"limbo/internal/domain"
)

// ValidatePermissions checks that every permission declared by the manifest
// is known, allowed and not denied. An empty allow list allows every known
// permission.
func ValidatePermissions(manifest domain.PluginManifest, allowed, denied []string) error {
	for _, perm := range manifest.Permissions {
		if !perm.Valid() {
			return domain.NewSubSystemError("plugin", "ValidatePermissions", domain.ErrInvalidInput,
				fmt.Sprintf("plugin %q requests unknown permission %q", manifest.ID, perm))
		}
		if slices.Contains(denied, string(perm)) {
			return domain.NewSubSystemError("plugin", "ValidatePermissions", domain.ErrPermissionDenied,
				fmt.Sprintf("plugin %q requests denied permission %q", manifest.ID, perm))
		}
		if len(allowed) > 0 && !slices.Contains(allowed, string(perm)) {
			return domain.NewSubSystemError("plugin", "ValidatePermissions", domain.ErrPermissionDenied,
				fmt.Sprintf("plugin %q requests unlisted permission %q", manifest.ID, perm))
		}
	}
	return nil
}

// HasPermission reports whether the manifest requests perm.
func HasPermission(manifest domain.PluginManifest, perm domain.Permission) bool {
	return slices.Contains(manifest.Permissions, perm)
}
