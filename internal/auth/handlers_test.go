package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/temirov/GAuss/pkg/constants"
	"github.com/temirov/GAuss/pkg/gauss"
	"github.com/temirov/GAuss/pkg/session"
)

const (
	testGoogleClientID     = "test-client-id"
	testGoogleClientSecret = "test-client-secret"
	testSessionSecret      = "0123456789abcdef0123456789abcdef"
	testPublicBaseURL      = "http://localhost:8080"
	testPublicHost         = "safecall.example.org"
	testRedirectURIKey     = "redirect_uri"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	session.NewSession([]byte(testSessionSecret))

	handlers, handlersErr := NewHandlers(Config{
		GoogleClientID:     testGoogleClientID,
		GoogleClientSecret: testGoogleClientSecret,
		PublicBaseURL:      testPublicBaseURL,
		LocalRedirectPath:  "/",
		Scopes:             gauss.ScopeStrings(gauss.DefaultScopes),
	})
	require.NoError(t, handlersErr)

	router := gin.New()
	handlers.RegisterRoutes(router)
	return router
}

func redirectURIFor(t *testing.T, router *gin.Engine, request *http.Request) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusFound, recorder.Code)

	location, parseErr := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, parseErr)
	return location.Query().Get(testRedirectURIKey)
}

func TestGoogleAuthRedirectHonorsForwardedHeaders(t *testing.T) {
	testCases := []struct {
		name        string
		headers     map[string]string
		expectedURI string
	}{
		{
			name:        "x-forwarded-proto",
			headers:     map[string]string{"X-Forwarded-Proto": "https"},
			expectedURI: "https://" + testPublicHost + constants.CallbackPath,
		},
		{
			name:        "rfc 7239 forwarded",
			headers:     map[string]string{"Forwarded": "for=10.0.0.1;proto=https;host=alerts.example.org"},
			expectedURI: "https://alerts.example.org" + constants.CallbackPath,
		},
		{
			name:        "forwarded host and port",
			headers:     map[string]string{"X-Forwarded-Host": "proxy.example.org", "X-Forwarded-Port": "8443", "X-Forwarded-Proto": "https, http"},
			expectedURI: "https://proxy.example.org:8443" + constants.CallbackPath,
		},
		{
			name:        "no proxy headers",
			headers:     map[string]string{},
			expectedURI: "http://" + testPublicHost + constants.CallbackPath,
		},
	}

	router := newTestRouter(t)
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, constants.GoogleAuthPath, nil)
			request.Host = testPublicHost
			for headerName, headerValue := range testCase.headers {
				request.Header.Set(headerName, headerValue)
			}
			require.Equal(t, testCase.expectedURI, redirectURIFor(t, router, request))
		})
	}
}

func TestNewHandlersRequiresClientCredentials(t *testing.T) {
	_, handlersErr := NewHandlers(Config{PublicBaseURL: testPublicBaseURL})
	require.ErrorIs(t, handlersErr, ErrMissingClientCredentials)
}

func TestForwardedParametersSkipEmptyValues(t *testing.T) {
	parameters := forwardedParameters(`for=1.2.3.4;proto=, Proto="https";host=a.example, host=b.example`)
	require.Equal(t, "https", parameters[forwardedKeyProto])
	require.Equal(t, "a.example", parameters[forwardedKeyHost])
	require.Empty(t, forwardedParameters("proto=")[forwardedKeyProto])
	require.Equal(t, "b.example", listHead(" , b.example, c.example"))
}

func TestGoogleAuthRedirectUsesTLSWhenNoProxyScheme(t *testing.T) {
	router := newTestRouter(t)
	request := httptest.NewRequest(http.MethodGet, "https://"+testPublicHost+constants.GoogleAuthPath, nil)
	require.NotNil(t, request.TLS)
	require.Equal(t, "https://"+testPublicHost+constants.CallbackPath, redirectURIFor(t, router, request))
}
