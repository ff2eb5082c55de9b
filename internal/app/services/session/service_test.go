package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/afrobizconnect/client-go/internal/api"
	"github.com/afrobizconnect/client-go/internal/app/domain/user"
	"github.com/afrobizconnect/client-go/internal/storage"
)

const authOK = `{"success":true,"data":{
	"user":{"id":"u1","email":"amara@example.com","firstName":"Amara","lastName":"Okafor","userType":"customer"},
	"tokens":{"accessToken":"access-1","refreshToken":"refresh-1","expiresIn":3600}
}}`

func newTestService(t *testing.T, handler http.Handler) (*Service, *storage.Memory) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := storage.NewMemory()
	client, err := api.New(api.Config{BaseURL: srv.URL, Storage: store})
	if err != nil {
		t.Fatalf("api.New() error: %v", err)
	}
	return New(client, store, nil), store
}

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

func TestSignIn_PersistsSessionAndBearsToken(t *testing.T) {
	var gotAuth atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/auth/login":
			fmt.Fprint(w, authOK)
		case "/api/v1/bookings":
			gotAuth.Store(r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"success":true,"data":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"success":false,"message":"not found"}`)
		}
	})
	svc, store := newTestService(t, handler)
	ctx := context.Background()

	u, err := svc.SignIn(ctx, user.Credentials{Email: "amara@example.com", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if u.ID != "u1" || !svc.IsAuthenticated() {
		t.Errorf("user = %+v, authenticated = %v", u, svc.IsAuthenticated())
	}

	for key, want := range map[string]string{
		storage.KeyAccessToken:  "access-1",
		storage.KeyRefreshToken: "refresh-1",
	} {
		if got, err := store.Get(ctx, key); err != nil || got != want {
			t.Errorf("stored %s = %q, %v; want %q", key, got, err, want)
		}
	}
	if expiry, err := store.Get(ctx, storage.KeyTokenExpiry); err != nil {
		t.Errorf("token expiry should be persisted: %v", err)
	} else if ts, perr := time.Parse(time.RFC3339, expiry); perr != nil || time.Until(ts) < 50*time.Minute {
		t.Errorf("token expiry = %q (%v), want ~1h out", expiry, perr)
	}

	// The next authed request must carry the new token.
	if _, err := svc.api.Get(ctx, "/bookings", true); err != nil {
		t.Fatalf("authed request error: %v", err)
	}
	if got, _ := gotAuth.Load().(string); got != "Bearer access-1" {
		t.Errorf("Authorization = %q, want Bearer access-1", got)
	}
}

func TestSignIn_LocalValidation(t *testing.T) {
	svc, _ := newTestService(t, jsonHandler(http.StatusOK, authOK))
	if _, err := svc.SignIn(context.Background(), user.Credentials{Email: "", Password: "x"}); err == nil {
		t.Error("SignIn() with empty email should fail locally")
	}
	if svc.LastError() == nil {
		t.Error("local validation failure should be recorded as last error")
	}
	svc.ClearError()
	if svc.LastError() != nil {
		t.Error("ClearError() should discard the failure")
	}
}

func TestSignUp_Validation(t *testing.T) {
	svc, _ := newTestService(t, jsonHandler(http.StatusOK, authOK))
	ctx := context.Background()

	base := user.Registration{
		FirstName:       "Amara",
		LastName:        "Okafor",
		Email:           "amara@example.com",
		Password:        "longenough",
		ConfirmPassword: "longenough",
	}

	short := base
	short.Password, short.ConfirmPassword = "short", "short"
	if _, err := svc.SignUp(ctx, short); err == nil {
		t.Error("SignUp() with short password should fail")
	}

	mismatch := base
	mismatch.ConfirmPassword = "different-pass"
	if _, err := svc.SignUp(ctx, mismatch); err == nil {
		t.Error("SignUp() with mismatched passwords should fail")
	}

	business := base
	business.UserType = user.TypeBusiness
	if _, err := svc.SignUp(ctx, business); err == nil {
		t.Error("SignUp() business account without a business name should fail")
	}

	if u, err := svc.SignUp(ctx, base); err != nil {
		t.Errorf("SignUp() error: %v", err)
	} else if u.ID != "u1" {
		t.Errorf("user = %+v", u)
	}
}

func TestSignOut_ClearsLocalStateDespiteServerFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/auth/login" {
			fmt.Fprint(w, authOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"success":false,"message":"boom"}`)
	})
	svc, store := newTestService(t, handler)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, user.Credentials{Email: "a@b.c", Password: "p"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	if err := svc.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}
	if svc.IsAuthenticated() || svc.CurrentUser() != nil {
		t.Error("SignOut() must clear the in-memory user even when the server call fails")
	}
	for _, key := range storage.SessionKeys {
		if _, err := store.Get(ctx, key); err == nil {
			t.Errorf("session key %s should be cleared", key)
		}
	}
}

func TestInitialize_RestoresStoredSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/auth/me" {
			fmt.Fprint(w, `{"success":true,"data":{"id":"u1","email":"amara@example.com","firstName":"Amara","lastName":"Okafor","userType":"customer","emailVerified":true}}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false}`)
	})
	svc, store := newTestService(t, handler)
	ctx := context.Background()

	seed := map[string]string{
		storage.KeyAccessToken:  "access-1",
		storage.KeyRefreshToken: "refresh-1",
		storage.KeyUser:         `{"id":"u1","email":"amara@example.com","firstName":"Amara","lastName":"Okafor","userType":"customer"}`,
		storage.KeyFirstLaunch:  "false",
	}
	if err := store.SetMulti(ctx, seed); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if err := svc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	u := svc.CurrentUser()
	if u == nil || u.ID != "u1" {
		t.Fatalf("CurrentUser() = %+v, want restored u1", u)
	}
	if svc.IsFirstLaunch() {
		t.Error("IsFirstLaunch() = true with stored flag false")
	}
	if !u.EmailVerified {
		t.Error("revalidation should adopt the fresh server record")
	}
}

func TestInitialize_NoStoredSession(t *testing.T) {
	svc, _ := newTestService(t, jsonHandler(http.StatusNotFound, `{"success":false}`))
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if svc.IsAuthenticated() {
		t.Error("fresh install should not be authenticated")
	}
	if !svc.IsFirstLaunch() {
		t.Error("fresh install should be first launch")
	}
}

func TestMarkOnboardingComplete_Idempotent(t *testing.T) {
	svc, store := newTestService(t, jsonHandler(http.StatusOK, `{"success":true}`))
	ctx := context.Background()

	if err := svc.MarkOnboardingComplete(ctx); err != nil {
		t.Fatalf("MarkOnboardingComplete() error: %v", err)
	}
	if svc.IsFirstLaunch() {
		t.Error("IsFirstLaunch() should flip to false")
	}
	if v, err := store.Get(ctx, storage.KeyFirstLaunch); err != nil || v != "false" {
		t.Errorf("stored flag = %q, %v", v, err)
	}
	if err := svc.MarkOnboardingComplete(ctx); err != nil {
		t.Errorf("second MarkOnboardingComplete() should be a no-op, got %v", err)
	}
}

func TestUpdateProfile_RequiresUser(t *testing.T) {
	svc, _ := newTestService(t, jsonHandler(http.StatusOK, `{"success":true}`))
	if _, err := svc.UpdateProfile(context.Background(), user.Profile{Bio: "hi"}); err != ErrNotAuthenticated {
		t.Errorf("UpdateProfile() without user = %v, want ErrNotAuthenticated", err)
	}
	if err := svc.ChangePassword(context.Background(), "old-pass", "new-pass-long"); err != ErrNotAuthenticated {
		t.Errorf("ChangePassword() without user = %v, want ErrNotAuthenticated", err)
	}
}

func TestBiometricPreference(t *testing.T) {
	svc, _ := newTestService(t, jsonHandler(http.StatusOK, `{"success":true}`))
	ctx := context.Background()

	if svc.BiometricEnabled(ctx) {
		t.Error("biometric should default to disabled")
	}
	if err := svc.SetBiometricEnabled(ctx, true); err != nil {
		t.Fatalf("SetBiometricEnabled() error: %v", err)
	}
	if !svc.BiometricEnabled(ctx) {
		t.Error("biometric should be enabled after set")
	}
}

func TestSubscribe_ObserverNotified(t *testing.T) {
	svc, _ := newTestService(t, jsonHandler(http.StatusOK, authOK))
	ctx := context.Background()

	var sawUser atomic.Bool
	unsubscribe := svc.Subscribe(func(snap Snapshot) {
		if snap.User != nil {
			sawUser.Store(true)
		}
	})

	if _, err := svc.SignIn(ctx, user.Credentials{Email: "a@b.c", Password: "p"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if !sawUser.Load() {
		t.Error("observer never saw the signed-in user")
	}

	unsubscribe()
	sawUser.Store(false)
	svc.ClearError()
	if sawUser.Load() {
		t.Error("unsubscribed observer still notified")
	}
}

func TestAuthFailureHook_DropsUser(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v1/auth/login":
			fmt.Fprint(w, authOK)
		case r.URL.Path == "/api/v1/auth/refresh":
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"success":false,"message":"revoked"}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"success":false,"message":"expired"}`)
		}
	})
	svc, _ := newTestService(t, handler)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, user.Credentials{Email: "a@b.c", Password: "p"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	_, err := svc.api.Get(ctx, "/bookings", true)
	if !api.IsAuthFailed(err) {
		t.Fatalf("error = %v, want auth-failed", err)
	}
	if svc.IsAuthenticated() {
		t.Error("terminal refresh failure must drop the in-memory user")
	}
}

func TestTokenExpiry_JWTFallback(t *testing.T) {
	// Unsigned token with exp 2000000000 (2033-05-18).
	header := `{"alg":"none","typ":"JWT"}`
	claims := `{"exp":2000000000}`
	tok := b64(header) + "." + b64(claims) + "."

	got := tokenExpiry(user.Tokens{AccessToken: tok})
	if got.Unix() != 2000000000 {
		t.Errorf("tokenExpiry from exp claim = %v, want unix 2000000000", got)
	}

	if !tokenExpiry(user.Tokens{AccessToken: "not-a-jwt"}).IsZero() {
		t.Error("unparseable token should yield zero expiry")
	}

	fromField := tokenExpiry(user.Tokens{AccessToken: tok, ExpiresIn: 60})
	if until := time.Until(fromField); until > time.Minute || until < 50*time.Second {
		t.Errorf("expiresIn should win over the claim, got %v out", until)
	}
}

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestProfileAndVerification_EndpointContract(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/auth/login" {
			fmt.Fprint(w, authOK)
			return
		}
		calls = append(calls, call{r.Method, r.URL.Path})
		fmt.Fprint(w, `{"success":true,"data":{"id":"u1","email":"amara@example.com","userType":"customer"}}`)
	})
	svc, _ := newTestService(t, handler)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, user.Credentials{Email: "amara@example.com", Password: "password1"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, user.Profile{}); err != nil {
		t.Fatalf("UpdateProfile() error: %v", err)
	}
	if err := svc.ResendEmailVerification(ctx); err != nil {
		t.Fatalf("ResendEmailVerification() error: %v", err)
	}

	svc.adoptUser(ctx, &user.User{ID: "u1", Email: "amara@example.com", UserType: user.TypeBusiness})
	if _, err := svc.UpdateBusinessProfile(ctx, user.BusinessProfile{Name: "Amara Styling"}); err != nil {
		t.Fatalf("UpdateBusinessProfile() error: %v", err)
	}

	want := []call{
		{http.MethodPatch, "/api/v1/auth/profile"},
		{http.MethodPost, "/api/v1/auth/resend-verification"},
		{http.MethodPatch, "/api/v1/auth/business-profile"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s %s, want %s %s", i, calls[i].method, calls[i].path, want[i].method, want[i].path)
		}
	}
}

func TestUploadAvatar_PostsToAuthEndpoint(t *testing.T) {
	var gotPath, gotContentType string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/auth/login" {
			fmt.Fprint(w, authOK)
			return
		}
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		fmt.Fprint(w, `{"success":true,"data":{"id":"u1","email":"amara@example.com","userType":"customer","avatar":"https://cdn.example.com/u1.jpg"}}`)
	})
	svc, _ := newTestService(t, handler)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, user.Credentials{Email: "amara@example.com", Password: "password1"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	u, err := svc.UploadAvatar(ctx, "me.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"), nil)
	if err != nil {
		t.Fatalf("UploadAvatar() error: %v", err)
	}
	if gotPath != "/api/v1/auth/upload-avatar" {
		t.Errorf("path = %s, want /api/v1/auth/upload-avatar", gotPath)
	}
	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Errorf("content type = %q, want multipart/form-data", gotContentType)
	}
	if u.Avatar == "" {
		t.Error("updated user should carry the new avatar URL")
	}
}
