package carrier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// callsAPIBaseURLForTest points callsAPIBaseURL at a local test server and
// returns a function that restores the original value.
func callsAPIBaseURLForTest(url string) func() {
	orig := callsAPIBaseURL
	callsAPIBaseURL = url
	return func() { callsAPIBaseURL = orig }
}

func TestTwilioRedirector_Redirect_Success(t *testing.T) {
	var gotPath string
	var gotTwiml string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotTwiml = r.PostForm.Get("Twiml")
		json.NewEncoder(w).Encode(callUpdateResponse{Status: "in-progress"})
	}))
	defer srv.Close()

	red := NewTwilioRedirector("ACxxx", "tok")
	red.httpClient = srv.Client()

	origBase := callsAPIBaseURLForTest(srv.URL)
	defer origBase()

	if err := red.Redirect(context.Background(), "CA123", "+15551230000"); err != nil {
		t.Fatalf("Redirect: %v", err)
	}
	if !strings.Contains(gotPath, "CA123") {
		t.Errorf("path = %q, want it to contain the call SID", gotPath)
	}
	if !strings.Contains(gotTwiml, "+15551230000") {
		t.Errorf("twiml = %q, want it to contain the target number", gotTwiml)
	}
}

func TestTwilioRedirector_Redirect_PropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(callUpdateResponse{ErrorMessage: "call not found"})
	}))
	defer srv.Close()

	red := NewTwilioRedirector("ACxxx", "tok")
	red.httpClient = srv.Client()

	origBase := callsAPIBaseURLForTest(srv.URL)
	defer origBase()

	err := red.Redirect(context.Background(), "CA123", "+15551230000")
	if err == nil {
		t.Fatal("expected an error on a non-2xx response")
	}
}
