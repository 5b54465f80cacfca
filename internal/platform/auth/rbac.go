package auth

import (
	"net/http"
	"strings"
)

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// roleLevels orders roles; a role grants every role below it.
var roleLevels = map[string]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// methodRoles is the minimum role per HTTP method. Unlisted methods need
// operator.
var methodRoles = map[string]string{
	http.MethodGet:     RoleViewer,
	http.MethodHead:    RoleViewer,
	http.MethodOptions: RoleViewer,
	http.MethodDelete:  RoleAdmin,
}

func level(role string) int {
	return roleLevels[strings.ToLower(strings.TrimSpace(role))]
}

func HasAtLeast(roles []string, required string) bool {
	want := level(required)
	if want == 0 {
		return false
	}
	for _, role := range roles {
		if level(role) >= want {
			return true
		}
	}
	return false
}

func RequiredRoleForRequest(r *http.Request) string {
	if role, ok := methodRoles[r.Method]; ok {
		return role
	}
	return RoleOperator
}
