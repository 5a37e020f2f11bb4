package models

import (
	"github.com/golang-jwt/jwt/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID int  `json:"userID"`
	Role   Role `json:"role"`
}

// OAuthState is the signed payload carried through the provider redirect. The
// provider calls back anonymously, so the state must recover the initiating
// user without a live session.
type OAuthState struct {
	jwt.RegisteredClaims
	UserID     int    `json:"userID"`
	ReturnPath string `json:"returnPath"`
	Nonce      string `json:"nonce"`
}
