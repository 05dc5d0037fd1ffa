package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/temirov/GAuss/pkg/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/accounts"
	"github.com/MarkoPoloResearchLab/safecall/internal/approval"
	"github.com/MarkoPoloResearchLab/safecall/internal/httpapi"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	testSessionContextKey = "httpapi_current_user"
	testSessionSecret     = "12345678901234567890123456789012"
	testUserEmail         = "doctor@hospital.example"
	testOtherUserEmail    = "nurse@hospital.example"
	testAdminEmail        = "chief@hospital.example"
	testPassword          = "correct-horse"
	testErrorKey          = "error"
	testToastKey          = "toast"
)

func newJSONContext(method string, path string, body any) (*httptest.ResponseRecorder, *gin.Context) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	var requestBody *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		requestBody = bytes.NewReader(encoded)
	} else {
		requestBody = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, requestBody)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	context, _ := gin.CreateTestContext(recorder)
	context.Request = request
	return recorder, context
}

func setCurrentUser(context *gin.Context, profile model.Profile) {
	context.Set(testSessionContextKey, &httpapi.CurrentUser{
		ProfileID: profile.ID,
		Email:     profile.Email,
		Name:      profile.DisplayName(),
		Role:      profile.Role,
		Status:    profile.Status,
	})
}

func decodeJSON(testingT *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testingT.Helper()
	var decoded map[string]any
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &decoded), recorder.Body.String())
	return decoded
}

func toastTitle(testingT *testing.T, body map[string]any) string {
	testingT.Helper()
	toast, ok := body[testToastKey].(map[string]any)
	require.True(testingT, ok, "response carries no toast: %v", body)
	title, _ := toast["title"].(string)
	return title
}

// initSessionStore must run before NewAuthManager, which captures the store.
func initSessionStore() {
	session.NewSession([]byte(testSessionSecret))
}

func newAccountService(testingT *testing.T, database *gorm.DB, rule string, admins ...string) *accounts.Service {
	testingT.Helper()
	policy, policyErr := approval.NewPolicy(rule)
	require.NoError(testingT, policyErr)
	service, serviceErr := accounts.NewService(accounts.Config{
		Database:        database,
		Policy:          policy,
		BootstrapAdmins: admins,
		Logger:          zap.NewNop(),
		BcryptCost:      bcrypt.MinCost,
	})
	require.NoError(testingT, serviceErr)
	return service
}

// sessionClient replays cookies across requests served by one router.
type sessionClient struct {
	testingT *testing.T
	router   *gin.Engine
	cookies  map[string]*http.Cookie
}

func newSessionClient(testingT *testing.T, router *gin.Engine) *sessionClient {
	return &sessionClient{testingT: testingT, router: router, cookies: make(map[string]*http.Cookie)}
}

func (client *sessionClient) do(method string, path string, body any) *httptest.ResponseRecorder {
	client.testingT.Helper()
	var requestBody *bytes.Reader
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		require.NoError(client.testingT, encodeErr)
		requestBody = bytes.NewReader(encoded)
	} else {
		requestBody = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, requestBody)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range client.cookies {
		request.AddCookie(cookie)
	}

	recorder := httptest.NewRecorder()
	client.router.ServeHTTP(recorder, request)
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(client.cookies, cookie.Name)
			continue
		}
		client.cookies[cookie.Name] = cookie
	}
	return recorder
}
