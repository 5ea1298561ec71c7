package service

import "errors"

// Sentinel errors returned by the services. The Telegram and HTTP layers map
// these to user-facing responses; anything else is treated as an internal
// failure.
var (
	ErrCodeInvalid      = errors.New("access code invalid")
	ErrCodeUsed         = errors.New("access code already used")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrNeedRedeem       = errors.New("no access code redeemed")
	ErrQuotaExhausted   = errors.New("quota exhausted")
	ErrCourseNotFound   = errors.New("course not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrNotEnrolled      = errors.New("not enrolled in course")
	ErrPremiumCourse    = errors.New("course requires paid enrollment")
	ErrCourseIncomplete = errors.New("course requirements not met")
	ErrUnknownPrice     = errors.New("unknown price id")
)
