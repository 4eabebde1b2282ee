package drive

import (
	"time"

	"golang.org/x/oauth2"
)

// expirySkew treats a token as expired slightly before its real expiry.
const expirySkew = 10 * time.Second

// Credential is the persisted OAuth token pair for one user.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// CredentialFromToken converts an oauth2 token.
func CredentialFromToken(tok *oauth2.Token) Credential {
	c := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		c.Scope = scope
	}
	return c
}

// Token converts back to an oauth2 token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// Valid reports whether the access token can still be used at now.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.Expiry.IsZero() || now.Add(expirySkew).Before(c.Expiry)
}
