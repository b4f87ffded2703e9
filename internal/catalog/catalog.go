package catalog

import (
	"regexp"
	"strings"
)

// #region vocabulary

// itemList is the standardization vocabulary. Shorter names come first so a
// later, longer rewrite wins when names overlap.
var itemList = []string{
	"Robot",
	"Kuka Robot", "Kuka Robot KR125", "Kuka Robot KR350",
	"ABB Robot", "ABB Robot IRB6600",
	"YASKAWA Robot", "YASKAWA Robot ma01800",
	"Table", "Welding Table", "Turntable",
	"Guarding", "Cabinet", "ValveStand", "Conveyor",
}

// permissionList is the closed set of placeable object types.
var permissionList = []string{
	"Kuka Robot KR125", "Kuka Robot KR350",
	"ABB Robot IRB6600", "YASKAWA Robot ma01800",
	"Welding Table", "Turntable", "Cabinet", "ValveStand", "Conveyor",
	"Guarding",
}

// Guarding is the distinguished non-occupying object type.
const Guarding = "Guarding"

// ItemList returns a copy of the standardization vocabulary.
func ItemList() []string {
	return append([]string(nil), itemList...)
}

// PermissionList returns a copy of the placeable object types.
func PermissionList() []string {
	return append([]string(nil), permissionList...)
}

// #endregion vocabulary

// #region matching

var instanceSuffix = regexp.MustCompile(`\s+\d+$`)

// BaseName strips a trailing instance index ("Robot 2" -> "Robot").
func BaseName(name string) string {
	return instanceSuffix.ReplaceAllString(strings.TrimSpace(name), "")
}

// Permitted reports whether name contains a placeable type, ignoring case.
func Permitted(name string) bool {
	return containsAny(name, permissionList)
}

// Known reports whether name contains any vocabulary item, ignoring case.
func Known(name string) bool {
	return containsAny(name, itemList)
}

// Resolve returns the canonical type whose name is the longest
// case-insensitive substring of name. ok is false when nothing matches.
func Resolve(name string) (canonical string, ok bool) {
	lower := strings.ToLower(name)
	for _, item := range itemList {
		if strings.Contains(lower, strings.ToLower(item)) && len(item) > len(canonical) {
			canonical = item
		}
	}
	return canonical, canonical != ""
}

// IsGuarding reports whether name refers to the Guarding type.
func IsGuarding(name string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(Guarding))
}

func containsAny(name string, list []string) bool {
	lower := strings.ToLower(name)
	for _, p := range list {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// #endregion matching
