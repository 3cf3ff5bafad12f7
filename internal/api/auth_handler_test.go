package api

import (
	"net/http"
	"testing"

	"ctonjob/internal/auth"
	"ctonjob/internal/database"
)

func signupPayload(email string) map[string]any {
	return map[string]any{
		"full_name":        "Alice Martin",
		"email":            email,
		"password":         "motdepasse1",
		"consentement":     true,
		"mentions_legales": true,
	}
}

func TestSignupCreatesCandidateProfile(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(http.MethodPost, "/v1/auth/signup", "", signupPayload("Alice@Example.fr"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["id"].(string)

	var profile database.Profile
	if err := env.db.First(&profile, "id = ?", id).Error; err != nil {
		t.Fatalf("profile not created: %v", err)
	}
	if profile.Role != database.RoleCandidate || profile.Email != "alice@example.fr" || profile.DateConsentement == nil {
		t.Fatalf("unexpected profile %+v", profile)
	}

	w = env.doJSON(http.MethodPost, "/v1/auth/signup", "", signupPayload("alice@example.fr"))
	expectError(t, w, http.StatusConflict, "Email déjà utilisé")
}

func TestSignupRejectsBotsAndMissingConsent(t *testing.T) {
	env := newTestEnv(t)

	payload := signupPayload("bot@example.fr")
	payload["honeypot"] = "http://spam"
	expectError(t, env.doJSON(http.MethodPost, "/v1/auth/signup", "", payload), http.StatusBadRequest, "Bot détecté")

	payload = signupPayload("late@example.fr")
	payload["mentions_legales"] = false
	expectError(t, env.doJSON(http.MethodPost, "/v1/auth/signup", "", payload), http.StatusBadRequest, "Vous devez accepter les conditions d'utilisation")
}

func TestSignupRateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		payload := signupPayload("")
		payload["email"] = "x" + string(rune('a'+i)) + "@example.fr"
		if w := env.doJSON(http.MethodPost, "/v1/auth/signup", "", payload); w.Code != http.StatusCreated {
			t.Fatalf("signup %d: expected 201, got %d", i, w.Code)
		}
	}
	w := env.doJSON(http.MethodPost, "/v1/auth/signup", "", signupPayload("z@example.fr"))
	expectError(t, w, http.StatusTooManyRequests, "Trop de requêtes, réessayez plus tard")
}

func TestLoginAndLockout(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("motdepasse1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	env.db.Create(&database.User{ID: "u1", Email: "bob@example.fr", PasswordHash: hash})

	w := env.doJSON(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "BOB@example.fr", "password": "motdepasse1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["access_token"] == "" {
		t.Fatal("expected access token")
	}

	for i := 0; i < 5; i++ {
		w = env.doJSON(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "bob@example.fr", "password": "mauvais"})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, w.Code)
		}
	}
	w = env.doJSON(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "bob@example.fr", "password": "motdepasse1"})
	expectError(t, w, http.StatusTooManyRequests, "Compte temporairement verrouillé")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(http.MethodGet, "/v1/me", "", nil, ""), http.StatusUnauthorized, "Token manquant")
	expectError(t, env.do(http.MethodGet, "/v1/me", "not-a-jwt", nil, ""), http.StatusUnauthorized, "Utilisateur non authentifié")
}

func TestPasswordChangeGate(t *testing.T) {
	env := newTestEnv(t)
	env.user("adm", database.RoleAdmin)
	pair, err := env.auth.GenerateTokenPair("adm", true)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	expectError(t, env.do(http.MethodGet, "/v1/admin/users", pair.AccessToken, nil, ""), http.StatusForbidden, "Changement de mot de passe requis")
}
