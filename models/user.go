package models

// UserOption is a selectable local user, as reported by AccountsService.
type UserOption struct {
	Username string `json:"username"`
	RealName string `json:"real_name"`
}

// Display renders the user for listings: "Real Name (username)", or the bare
// username when no real name is set.
func (u UserOption) Display() string {
	if u.RealName == "" {
		return u.Username
	}
	return u.RealName + " (" + u.Username + ")"
}
