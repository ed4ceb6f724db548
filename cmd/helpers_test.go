package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testRedirectURI = "http://localhost:8765/callback"

// executeCommand runs the root command with args and returns stdout and the
// error. Flag variables are reset first because cobra keeps them between runs.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	quiet = false
	debugLog = false
	loginLaunch = ""
	loginNoBrowser = false
	discoverOutput = "table"
	fhirOutput = "json"

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), err
}

// fakeSmartServer serves discovery, token and FHIR endpoints.
type fakeSmartServer struct {
	*httptest.Server

	mu         sync.Mutex
	tokenForms []map[string]string
}

func newFakeSmartServer(t *testing.T) *fakeSmartServer {
	t.Helper()
	s := &fakeSmartServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/fhir/.well-known/smart-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                           s.URL,
			"authorization_endpoint":           s.URL + "/auth",
			"token_endpoint":                   s.URL + "/token",
			"capabilities":                     []string{"launch-ehr", "launch-standalone"},
			"code_challenge_methods_supported": []string{"S256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		s.mu.Lock()
		s.tokenForms = append(s.tokenForms, form)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if form["code"] != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"unknown code"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "launch/patient openid",
			"patient":      "123",
			"id_token":     testIDToken(t, s.URL),
		})
	})
	mux.HandleFunc("/fhir/Patient/123", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"123"}`))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *fakeSmartServer) tokenRequests() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.tokenForms...)
}

func testIDToken(t *testing.T, issuer string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":      issuer,
		"sub":      "user-1",
		"aud":      "client",
		"fhirUser": "Practitioner/7",
		"name":     "Dr. Test",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// writeTestConfig writes a config.yaml pointing at server into a new
// directory and returns the directory.
func writeTestConfig(t *testing.T, fhirBaseURL string, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	content := strings.Join(append([]string{
		"smart:",
		"  fhirBaseUrl: " + fhirBaseURL,
		"  clientId: client",
		"  redirectUri: " + testRedirectURI,
		"  scope: launch/patient openid",
		"storage:",
		"  type: file",
	}, extra...), "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))
	return dir
}
