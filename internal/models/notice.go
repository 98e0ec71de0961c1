package models

import "github.com/golang-jwt/jwt/v5"

// NoticeType marks a token as a lockout notice
const NoticeType = "lockout_notice"

// NoticeClaims is the payload of the signed client-held lockout notice. It only
// tells the login form what to display and is never consulted when deciding
// whether an attempt is allowed.
type NoticeClaims struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
