package core

import "strings"

// Role is the registration role of a ship.
type Role string

const (
	RoleCommand   Role = "COMMAND"
	RoleExcavator Role = "EXCAVATOR"
	RoleSatellite Role = "SATELLITE"
	RoleHauler    Role = "HAULER"
	RoleUnknown   Role = "UNKNOWN"
)

// ParseRole normalizes a role string. Roles outside the known set map to RoleUnknown.
func ParseRole(value string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleCommand:
		return RoleCommand
	case RoleExcavator:
		return RoleExcavator
	case RoleSatellite:
		return RoleSatellite
	case RoleHauler:
		return RoleHauler
	default:
		return RoleUnknown
	}
}
