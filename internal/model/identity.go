package model

// Identity is the authenticated applicant. UserID is the Discord user id.
type Identity struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	HighestRole string `json:"highest_role"`
}
