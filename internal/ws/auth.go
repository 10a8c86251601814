package ws

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/store"
)

// CloseUnauthenticated is the websocket close code sent to connections
// whose handshake carries no valid identity.
const CloseUnauthenticated = 4001

// UserDirectory resolves authenticated user ids to directory entries.
type UserDirectory interface {
	GetUser(id int64) (*store.User, error)
}

// Authenticate extracts the bearer token from the upgrade request
// (Authorization header or ?token= query parameter), verifies it, and
// resolves the subject to an identity. Any failure is wrapped in
// registry.ErrUnauthenticated.
func Authenticate(r *http.Request, secret []byte, users UserDirectory) (registry.Identity, error) {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); token == "" && strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" {
		return registry.Identity{}, fmt.Errorf("%w: no token", registry.ErrUnauthenticated)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return registry.Identity{}, fmt.Errorf("%w: %v", registry.ErrUnauthenticated, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return registry.Identity{}, fmt.Errorf("%w: no subject claim", registry.ErrUnauthenticated)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return registry.Identity{}, fmt.Errorf("%w: bad subject %q", registry.ErrUnauthenticated, sub)
	}

	u, err := users.GetUser(userID)
	if err != nil {
		return registry.Identity{}, fmt.Errorf("%w: unknown user %d", registry.ErrUnauthenticated, userID)
	}
	return registry.Identity{UserID: u.ID, Username: u.Username}, nil
}

// IssueToken mints an HS256 token for a user id. Credential issuance
// proper lives outside this system; this exists for tooling and tests.
func IssueToken(secret []byte, userID int64) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
	})
	return t.SignedString(secret)
}
