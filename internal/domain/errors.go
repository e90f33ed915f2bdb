package domain

import "errors"

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")

	ErrInvalidRequest = errors.New("invalid request")
	ErrChatNotFound   = errors.New("chat not found")
	ErrUsersNotFound  = errors.New("some users not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrPersistence    = errors.New("persistence failure")
)
