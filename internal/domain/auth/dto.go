// internal/domain/auth/dto.go
package auth

// SignUpRequest for account creation
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
}

// SignInRequest for email/password sign-in
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RetryProfileRequest re-runs only the profile creation step of a sign-up
type RetryProfileRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required"`
}

// SignUpFailure is returned with a partial sign-up so the client can retry
type SignUpFailure struct {
	UserID string `json:"user_id"`
}
