// Package middleware provides HTTP middleware for authentication, logging,
// request limits, CORS and response headers.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/pandeptwidyaop/trp-api/internal/validation"
)

// UserContextKey is the key for storing the authenticated username in the
// request context.
const UserContextKey = "user"

// Credentials is the single username/password pair accepted by BasicAuth.
// Password may be a bcrypt hash.
type Credentials struct {
	Username string
	Password string
	Realm    string
}

// Match reports whether the supplied pair is valid. Both fields are always
// evaluated so a wrong username costs the same as a wrong password.
func (c Credentials) Match(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1

	var passOK bool
	if validation.IsBcryptHash(c.Password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	}

	return userOK && passOK
}

// BasicAuth requires HTTP basic credentials matching creds.
func BasicAuth(creds Credentials) gin.HandlerFunc {
	realm := creds.Realm
	if realm == "" {
		realm = "Restricted"
	}
	challenge := `Basic realm="` + realm + `", charset="UTF-8"`

	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok || !creds.Match(username, password) {
			c.Header("WWW-Authenticate", challenge)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication credentials"})
			c.Abort()
			return
		}

		c.Set(UserContextKey, username)
		c.Next()
	}
}

// CurrentUser returns the username stored by BasicAuth.
func CurrentUser(c *gin.Context) string {
	return c.GetString(UserContextKey)
}
