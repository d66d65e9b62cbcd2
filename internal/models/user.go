package models

// User is a struct that represents a registered account.
type User struct {
	// ID is the unique identifier of the user, generated by the server.
	ID string

	// Name is the display name of the user.
	Name string

	// Email is the unique login of the user.
	Email string

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string
}

// PublicUser is the view of a User that may leave the server.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public strips the password hash.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}
