package domain

// Profile is the read-only projection of the authenticated student.
type Profile struct {
	FullName string `json:"fullName"`
	GroupID  string `json:"groupId"`
}

// Credentials authenticate a student against the account endpoints.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}
