package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func signAccess(t *testing.T, secret string, claims AccessClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAccessVerifier_Verify(t *testing.T) {
	v, err := NewAccessVerifier("shh", "https://auth.studymate.app")
	if err != nil {
		t.Fatal(err)
	}

	valid := AccessClaims{Email: "ana@example.com"}
	valid.Subject = "acct-1"
	valid.Issuer = "https://auth.studymate.app"
	valid.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	valid.UserMetadata.FullName = "Ana"

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noSubject := valid
	noSubject.Subject = ""

	otherIssuer := valid
	otherIssuer.Issuer = "https://evil.example"

	adminSession := valid
	adminSession.Audience = jwt.ClaimStrings{adminAudience}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", signAccess(t, "shh", valid), false},
		{"valid with bearer prefix", "Bearer " + signAccess(t, "shh", valid), false},
		{"wrong secret", signAccess(t, "nope", valid), true},
		{"expired", signAccess(t, "shh", expired), true},
		{"no subject", signAccess(t, "shh", noSubject), true},
		{"other issuer", signAccess(t, "shh", otherIssuer), true},
		{"admin session token", signAccess(t, "shh", adminSession), true},
		{"garbage", "not.a.token", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
			if err == nil && (id.UserID != "acct-1" || id.Email != "ana@example.com" || id.FullName != "Ana") {
				t.Errorf("Verify() identity = %+v", id)
			}
		})
	}
}

func TestAccessVerifier_RejectsNoneAlg(t *testing.T) {
	v, _ := NewAccessVerifier("shh", "")
	claims := AccessClaims{}
	claims.Subject = "acct-1"
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(token); err == nil {
		t.Error("Verify() must reject alg=none")
	}
}

func TestNewAccessVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewAccessVerifier("", ""); err == nil {
		t.Error("NewAccessVerifier() without secret should fail")
	}
}

func newTestAdmin(t *testing.T) *Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAdmin("Admin@StudyMate.com", string(hash), "admin-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewAdmin() error = %v", err)
	}
	return a
}

func TestAdmin_Login(t *testing.T) {
	a := newTestAdmin(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"valid", "admin@studymate.com", "correct horse", false},
		{"email case and spaces", "  ADMIN@studymate.com ", "correct horse", false},
		{"wrong password", "admin@studymate.com", "battery staple", true},
		{"wrong email", "root@studymate.com", "correct horse", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, exp, err := a.Login(tt.email, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Login() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
				}
				return
			}
			if token == "" || exp.IsZero() {
				t.Error("Login() should return a token and expiry")
			}
			if sub, err := a.Verify(token); err != nil || sub != "admin@studymate.com" {
				t.Errorf("Verify() = %q, %v", sub, err)
			}
		})
	}
}

func TestAdmin_TokenExpires(t *testing.T) {
	a := newTestAdmin(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return start }

	token, _, err := a.Login("admin@studymate.com", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	a.now = func() time.Time { return start.Add(2 * time.Hour) }
	if _, err := a.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() of expired token error = %v", err)
	}
}

func TestAdmin_RejectsLearnerToken(t *testing.T) {
	a := newTestAdmin(t)
	claims := AccessClaims{}
	claims.Subject = "admin@studymate.com"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	token := signAccess(t, "admin-secret", claims)
	if _, err := a.Verify(token); err == nil {
		t.Error("a token without the admin audience must be rejected")
	}
}

func TestNewAdmin_BadHash(t *testing.T) {
	if _, err := NewAdmin("a@b.c", "plaintext", "s", time.Hour); err == nil {
		t.Error("NewAdmin() should reject a non-bcrypt hash")
	}
}

func TestAdmin_Middleware(t *testing.T) {
	a := newTestAdmin(t)
	token, _, _ := a.Login("admin@studymate.com", "correct horse")

	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, ok := AdminFromContext(r.Context())
		if !ok || who != "admin@studymate.com" {
			t.Errorf("AdminFromContext() = %q, %v", who, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				if ct := w.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %q, want application/json", ct)
				}
				if w.Body.String() != `{"error":"unauthorized"}`+"\n" {
					t.Errorf("body = %q", w.Body.String())
				}
			}
		})
	}
}
