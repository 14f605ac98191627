package console

import (
	"strings"

	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// FilterUsers returns the users whose first name, last name or username
// contains keyword, ignoring case, in list order. A blank keyword or a
// search with no hits returns the whole list.
func FilterUsers(list []users.User, keyword string) []users.User {
	if keyword == "" {
		return list
	}
	needle := strings.ToLower(keyword)
	var hits []users.User
	for _, u := range list {
		if strings.Contains(strings.ToLower(u.FirstName), needle) ||
			strings.Contains(strings.ToLower(u.LastName), needle) ||
			strings.Contains(strings.ToLower(u.Username), needle) {
			hits = append(hits, u)
		}
	}
	if len(hits) == 0 {
		return list
	}
	return hits
}
