package ws

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/store"
)

var secret = []byte("test-secret")

type fakeDirectory struct {
	users map[int64]*store.User
}

func (f *fakeDirectory) GetUser(id int64) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func directory() *fakeDirectory {
	return &fakeDirectory{users: map[int64]*store.User{
		7: {ID: 7, Username: "alice", DisplayName: "Alice"},
	}}
}

func TestAuthenticateQueryToken(t *testing.T) {
	token, err := IssueToken(secret, 7)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/ws/chat/1?token="+token, nil)

	identity, err := Authenticate(r, secret, directory())
	if err != nil {
		t.Fatal(err)
	}
	if identity.UserID != 7 || identity.Username != "alice" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestAuthenticateBearerHeader(t *testing.T) {
	token, err := IssueToken(secret, 7)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/ws/chat/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	identity, err := Authenticate(r, secret, directory())
	if err != nil {
		t.Fatal(err)
	}
	if identity.UserID != 7 {
		t.Errorf("identity = %+v", identity)
	}
}

func TestAuthenticateNoToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/chat/1", nil)

	if _, err := Authenticate(r, secret, directory()); !errors.Is(err, registry.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("other-secret"), 7)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/ws/chat/1?token="+token, nil)

	if _, err := Authenticate(r, secret, directory()); !errors.Is(err, registry.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateRejectsNonHMAC(t *testing.T) {
	// alg=none style tokens must never pass.
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "7"})
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/ws/chat/1?token="+signed, nil)

	if _, err := Authenticate(r, secret, directory()); !errors.Is(err, registry.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	token, err := IssueToken(secret, 99)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/ws/chat/1?token="+token, nil)

	if _, err := Authenticate(r, secret, directory()); !errors.Is(err, registry.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateBadSubject(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "not-a-number"})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/ws/chat/1?token="+signed, nil)

	if _, err := Authenticate(r, secret, directory()); !errors.Is(err, registry.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}
