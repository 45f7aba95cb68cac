package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	Method string
	Form   url.Values
}

func siteverify(t *testing.T, status int, body string) (*httptest.Server, *seenRequest) {
	t.Helper()
	seen := &seenRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		seen.Method = r.Method
		seen.Form = r.PostForm
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestVerifyAccepted(t *testing.T) {
	srv, seen := siteverify(t, http.StatusOK, `{"success":true,"hostname":"example.org"}`)
	v := NewHCaptchaVerifier("s3cret", srv.URL, nil)

	ok, err := v.Verify(context.Background(), "tok", "203.0.113.9")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, http.MethodPost, seen.Method)
	require.Equal(t, "s3cret", seen.Form.Get("secret"))
	require.Equal(t, "tok", seen.Form.Get("response"))
	require.Equal(t, "203.0.113.9", seen.Form.Get("remoteip"))
}

func TestVerifyRejected(t *testing.T) {
	srv, _ := siteverify(t, http.StatusOK, `{"success":false,"error-codes":["invalid-input-response"]}`)
	ok, err := NewHCaptchaVerifier("s", srv.URL, nil).Verify(context.Background(), "tok", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyErrors(t *testing.T) {
	srv, _ := siteverify(t, http.StatusBadGateway, `bad gateway`)
	_, err := NewHCaptchaVerifier("s", srv.URL, nil).Verify(context.Background(), "tok", "")
	require.ErrorContains(t, err, "502")

	srv, _ = siteverify(t, http.StatusOK, `not json`)
	_, err = NewHCaptchaVerifier("s", srv.URL, nil).Verify(context.Background(), "tok", "")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewHCaptchaVerifier("s", srv.URL, nil).Verify(ctx, "tok", "")
	require.Error(t, err)
}

func TestStaticVerifier(t *testing.T) {
	ok, _ := StaticVerifier{}.Verify(context.Background(), "x", "")
	require.True(t, ok)
	ok, _ = StaticVerifier{}.Verify(context.Background(), "", "")
	require.False(t, ok)
}
