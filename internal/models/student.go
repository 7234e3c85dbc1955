package models

// Student is the read-only roster entry the engine ranks and rewards.
type Student struct {
	ID           string  `db:"id" json:"id"`
	ClassID      string  `db:"class_id" json:"class_id"`
	FullName     string  `db:"full_name" json:"full_name"`
	UserID       *string `db:"user_id" json:"user_id,omitempty"`
	ParentUserID *string `db:"parent_user_id" json:"parent_user_id,omitempty"`
	Active       bool    `db:"active" json:"active"`
}

// Recipients lists the user accounts that should hear about the student's progress.
func (s Student) Recipients() []string {
	out := make([]string, 0, 2)
	if s.UserID != nil && *s.UserID != "" {
		out = append(out, *s.UserID)
	}
	if s.ParentUserID != nil && *s.ParentUserID != "" {
		out = append(out, *s.ParentUserID)
	}
	return out
}
