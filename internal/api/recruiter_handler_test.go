package api

import (
	"net/http"
	"testing"
	"time"

	"ctonjob/internal/config"
	"ctonjob/internal/database"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/storage"
	"ctonjob/internal/testutil"
	"ctonjob/internal/upload"
)

func recruiterPayload(userID string) map[string]any {
	return map[string]any{
		"company_name":  "ACME Industrie",
		"contact_name":  "Claire Martin",
		"email":         "rh@acme-industrie.fr",
		"phone":         "06 12 34 56 78",
		"sector":        "Industrie",
		"location":      "Lyon",
		"siret":         "732 829 320 00074",
		"accepted_cgu":  true,
		"logo_path":     "recruiters/" + userID + "/logo.png",
		"docsiren_path": userID + "/1_kbis.pdf",
	}
}

func TestRecruiterUploadsValidatesFiles(t *testing.T) {
	env := newTestEnv(t)
	token := env.user("U1", database.RoleCandidate)

	w := env.doMultipart("/v1/recruiter/uploads", token, nil,
		formFile{field: "logo", name: "logo.png", data: testutil.PNG(6 * upload.MB)})
	expectError(t, w, http.StatusBadRequest, "Logo trop lourd")

	w = env.doMultipart("/v1/recruiter/uploads", token, map[string]string{"website": "http://spam"},
		formFile{field: "logo", name: "logo.png", data: testutil.PNG(1024)})
	expectError(t, w, http.StatusBadRequest, "Bot détecté")

	w = env.doMultipart("/v1/recruiter/uploads", token, nil,
		formFile{field: "logo", name: "logo.png", data: testutil.PNG(1024)})
	expectError(t, w, http.StatusBadRequest, "Fichier manquant")

	w = env.doMultipart("/v1/recruiter/uploads", token, nil,
		formFile{field: "logo", name: "logo.png", data: testutil.PNG(1024)},
		formFile{field: "file", name: "kbis.pdf", data: testutil.PDF(4096)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["logoPath"] != "recruiters/U1/logo.png" {
		t.Fatalf("unexpected logo path %v", body["logoPath"])
	}
	if !env.store.has(storage.BucketLogos, "recruiters/U1/logo.png") {
		t.Fatal("logo not stored")
	}
	if !env.store.has(storage.BucketCompanyVerifications, body["pdfPath"].(string)) {
		t.Fatal("siren document not stored")
	}
}

func TestCreateRecruiterValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.user("U1", database.RoleCandidate)

	cases := []struct {
		name   string
		mutate func(map[string]any)
		msg    string
	}{
		{"honeypot", func(p map[string]any) { p["honeypot"] = "x" }, "Bot détecté"},
		{"siret", func(p map[string]any) { p["siret"] = "1234" }, "SIRET invalide (14 chiffres)"},
		{"phone", func(p map[string]any) { p["phone"] = "abc" }, "Numéro de téléphone invalide"},
		{"cgu", func(p map[string]any) { p["accepted_cgu"] = false }, "Vous devez accepter les CGU"},
		{"foreign logo", func(p map[string]any) { p["logo_path"] = "recruiters/U2/logo.png" }, "Logo requis"},
		{"missing siren", func(p map[string]any) { delete(p, "docsiren_path") }, "Justificatif SIREN requis"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := recruiterPayload("U1")
			tc.mutate(payload)
			expectError(t, env.doJSON(http.MethodPost, "/v1/recruiter", token, payload), http.StatusBadRequest, tc.msg)
		})
	}
}

func TestCreateRecruiterAdminMode(t *testing.T) {
	env := newTestEnv(t)
	token := env.user("U1", database.RoleCandidate)

	w := env.doJSON(http.MethodPost, "/v1/recruiter", token, recruiterPayload("U1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var rec database.Recruiter
	env.db.Where("user_id = ?", "U1").First(&rec)
	if rec.Status != lifecycle.RecruiterPending || rec.Siret != "73282932000074" || rec.Phone != "0612345678" {
		t.Fatalf("unexpected recruiter %+v", rec)
	}
	var profile database.Profile
	env.db.First(&profile, "id = ?", "U1")
	if profile.Role != database.RoleRecruiter {
		t.Fatalf("expected recruiter role, got %s", profile.Role)
	}
	if len(env.events.recruiterSubmitted) != 1 || env.events.recruiterSubmitted[0].Token != "" {
		t.Fatalf("admin mode must not issue tokens: %+v", env.events.recruiterSubmitted)
	}

	w = env.doJSON(http.MethodPost, "/v1/recruiter", token, recruiterPayload("U1"))
	expectError(t, w, http.StatusConflict, "Profil recruteur déjà existant")

	// pending 招聘方不能进入工作台
	w = env.doJSON(http.MethodPost, "/v1/recruiter/jobs", token, map[string]any{
		"title": "Dev", "location": "Lyon", "type": "CDI", "description": "desc",
	})
	expectError(t, w, http.StatusForbidden, "Compte recruteur non validé")
}

func TestCreateRecruiterComputesLogoURL(t *testing.T) {
	env := newTestEnv(t)
	token := env.user("U1", database.RoleCandidate)

	payload := recruiterPayload("U1")
	payload["logo_url"] = "https://evil.example/phish.png"
	if w := env.doJSON(http.MethodPost, "/v1/recruiter", token, payload); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	want := "https://public.invalid/logos/recruiters/U1/logo.png"
	var rec database.Recruiter
	env.db.Where("user_id = ?", "U1").First(&rec)
	if rec.LogoURL != want {
		t.Fatalf("expected server computed logo url, got %q", rec.LogoURL)
	}

	env.db.Model(&rec).Update("status", lifecycle.RecruiterApproved)
	w := env.do(http.MethodGet, "/v1/companies", "", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items, _ := decode(t, w)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one company, got %s", w.Body.String())
	}
	if got := items[0].(map[string]any)["logo_url"]; got != want {
		t.Fatalf("company logo url = %v", got)
	}
}

func TestCreateRecruiterEmailModeStoresTokenWithRecord(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Recruiter.ApprovalMode = config.ApprovalModeEmail
	})
	token := env.user("U1", database.RoleCandidate)
	payload := recruiterPayload("U1")
	delete(payload, "docsiren_path")

	before := time.Now()
	if w := env.doJSON(http.MethodPost, "/v1/recruiter", token, payload); w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	plain := env.events.recruiterSubmitted[0].Token

	var rec database.Recruiter
	env.db.Where("user_id = ?", "U1").First(&rec)
	if rec.ConfirmationTokenHash == nil || *rec.ConfirmationTokenHash != lifecycle.HashConfirmationToken(plain) {
		t.Fatalf("token hash not stored with the recruiter row: %+v", rec.ConfirmationTokenHash)
	}
	if rec.ConfirmationExpiresAt == nil || rec.ConfirmationExpiresAt.Before(before.Add(47*time.Hour)) {
		t.Fatalf("unexpected expiry %v", rec.ConfirmationExpiresAt)
	}
	if rec.Status != lifecycle.RecruiterPending || rec.IsConfirmed {
		t.Fatalf("unexpected recruiter state %+v", rec)
	}
}

func TestRecruiterEmailConfirmation(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Recruiter.ApprovalMode = config.ApprovalModeEmail
	})
	token := env.user("U1", database.RoleCandidate)

	payload := recruiterPayload("U1")
	delete(payload, "docsiren_path")
	payload["email"] = "claire@gmail.com"
	expectError(t, env.doJSON(http.MethodPost, "/v1/recruiter", token, payload),
		http.StatusBadRequest, "Veuillez utiliser une adresse email professionnelle")

	payload["email"] = "rh@acme-industrie.fr"
	w := env.doJSON(http.MethodPost, "/v1/recruiter", token, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.events.recruiterSubmitted) != 1 {
		t.Fatalf("expected one submission event, got %d", len(env.events.recruiterSubmitted))
	}
	plain := env.events.recruiterSubmitted[0].Token
	if plain == "" {
		t.Fatal("expected a confirmation token")
	}

	var rec database.Recruiter
	env.db.Where("user_id = ?", "U1").First(&rec)
	if rec.ConfirmationTokenHash == nil || *rec.ConfirmationTokenHash == plain {
		t.Fatal("only the token hash must be stored")
	}

	w = env.doJSON(http.MethodPost, "/v1/recruiters/confirm", "", map[string]string{"token": plain})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["status"] != string(lifecycle.RecruiterApproved) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = env.doJSON(http.MethodPost, "/v1/recruiters/confirm", "", map[string]string{"token": plain})
	expectError(t, w, http.StatusBadRequest, "Lien invalide ou expiré")

	w = env.doJSON(http.MethodPost, "/v1/recruiter/jobs", token, map[string]any{
		"title": "Dev", "location": "Lyon", "type": "CDI", "description": "desc",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("confirmed recruiter should post jobs, got %d: %s", w.Code, w.Body.String())
	}
}

func TestResendConfirmationInvalidatesOldToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Recruiter.ApprovalMode = config.ApprovalModeEmail
	})
	token := env.user("U1", database.RoleCandidate)
	payload := recruiterPayload("U1")
	delete(payload, "docsiren_path")
	if w := env.doJSON(http.MethodPost, "/v1/recruiter", token, payload); w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	first := env.events.recruiterSubmitted[0].Token

	if w := env.do(http.MethodPost, "/v1/recruiter/confirmation", token, nil, ""); w.Code != http.StatusOK {
		t.Fatalf("resend: %d %s", w.Code, w.Body.String())
	}
	second := env.events.recruiterSubmitted[1].Token
	if second == "" || second == first {
		t.Fatal("resend must issue a new token")
	}

	w := env.doJSON(http.MethodPost, "/v1/recruiters/confirm", "", map[string]string{"token": first})
	expectError(t, w, http.StatusBadRequest, "Lien invalide ou expiré")
	w = env.doJSON(http.MethodPost, "/v1/recruiters/confirm", "", map[string]string{"token": second})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
