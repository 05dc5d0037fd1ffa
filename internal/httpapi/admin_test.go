package httpapi_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/httpapi"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
	"github.com/MarkoPoloResearchLab/safecall/internal/testutil"
)

const (
	testPendingEmail  = "pending@hospital.example"
	testRejectedEmail = "rejected@hospital.example"
)

type adminTestHarness struct {
	handlers *httpapi.AdminHandlers
	database *gorm.DB
	admin    model.Profile
	pending  model.Profile
	approved model.Profile
	rejected model.Profile
}

func newAdminTestHarness(testingT *testing.T) adminTestHarness {
	testingT.Helper()
	database := testutil.NewMigratedDatabase(testingT)
	service := newAccountService(testingT, database, "")
	return adminTestHarness{
		handlers: httpapi.NewAdminHandlers(service, zap.NewNop()),
		database: database,
		admin:    testutil.CreateProfile(testingT, database, testAdminEmail, model.RoleAdmin, model.StatusApproved),
		pending:  testutil.CreateProfile(testingT, database, testPendingEmail, model.RoleUser, model.StatusPending),
		approved: testutil.CreateProfile(testingT, database, testUserEmail, model.RoleUser, model.StatusApproved),
		rejected: testutil.CreateProfile(testingT, database, testRejectedEmail, model.RoleUser, model.StatusRejected),
	}
}

func (harness adminTestHarness) decide(testingT *testing.T, targetID string, action string) (int, map[string]any) {
	testingT.Helper()
	recorder, context := newJSONContext(http.MethodPost, "/api/admin/profiles/"+targetID+"/"+action, nil)
	context.Params = gin.Params{{Key: "id", Value: targetID}, {Key: "action", Value: action}}
	setCurrentUser(context, harness.admin)
	harness.handlers.Decide(context)
	return recorder.Code, decodeJSON(testingT, recorder)
}

func sectionProfiles(testingT *testing.T, body map[string]any, section string) []map[string]any {
	testingT.Helper()
	sectionBody, ok := body[section].(map[string]any)
	require.True(testingT, ok, "missing section %s", section)
	rawProfiles := sectionBody["profiles"].([]any)
	profiles := make([]map[string]any, 0, len(rawProfiles))
	for _, rawProfile := range rawProfiles {
		profiles = append(profiles, rawProfile.(map[string]any))
	}
	return profiles
}

func actionsOf(profile map[string]any) []string {
	rawActions, _ := profile["actions"].([]any)
	actions := make([]string, 0, len(rawActions))
	for _, rawAction := range rawActions {
		actions = append(actions, rawAction.(string))
	}
	return actions
}

func TestListProfilesGroupsByStatus(testingT *testing.T) {
	harness := newAdminTestHarness(testingT)

	recorder, context := newJSONContext(http.MethodGet, "/api/admin/profiles", nil)
	setCurrentUser(context, harness.admin)
	harness.handlers.ListProfiles(context)

	require.Equal(testingT, http.StatusOK, recorder.Code)
	body := decodeJSON(testingT, recorder)

	pending := sectionProfiles(testingT, body, "pending")
	require.Len(testingT, pending, 1)
	require.Equal(testingT, testPendingEmail, pending[0]["email"])
	require.Equal(testingT, "N/A", pending[0]["name"])
	require.Equal(testingT, "N/A", pending[0]["phone"])
	require.Equal(testingT, []string{"approve", "reject"}, actionsOf(pending[0]))

	approved := sectionProfiles(testingT, body, "approved")
	require.Len(testingT, approved, 2)
	actionsByEmail := map[string][]string{}
	for _, profile := range approved {
		actionsByEmail[profile["email"].(string)] = actionsOf(profile)
	}
	require.Equal(testingT, []string{"promote"}, actionsByEmail[testUserEmail])
	require.Empty(testingT, actionsByEmail[testAdminEmail])

	rejected := sectionProfiles(testingT, body, "rejected")
	require.Len(testingT, rejected, 1)
	require.Empty(testingT, actionsOf(rejected[0]))
}

func TestListProfilesEmptySectionsCarryText(testingT *testing.T) {
	database := testutil.NewMigratedDatabase(testingT)
	handlers := httpapi.NewAdminHandlers(newAccountService(testingT, database, ""), zap.NewNop())
	admin := testutil.CreateProfile(testingT, database, testAdminEmail, model.RoleAdmin, model.StatusApproved)

	recorder, context := newJSONContext(http.MethodGet, "/api/admin/profiles", nil)
	setCurrentUser(context, admin)
	handlers.ListProfiles(context)

	body := decodeJSON(testingT, recorder)
	require.Equal(testingT, "No pending users.", body["pending"].(map[string]any)["empty_text"])
	require.Empty(testingT, sectionProfiles(testingT, body, "pending"))
	require.Empty(testingT, sectionProfiles(testingT, body, "rejected"))
}

func TestDecideAppliesAllowedActions(testingT *testing.T) {
	testCases := []struct {
		name           string
		target         func(adminTestHarness) model.Profile
		action         string
		expectedTitle  string
		expectedStatus model.ProfileStatus
		expectedRole   model.ProfileRole
	}{
		{name: "approve pending", target: func(harness adminTestHarness) model.Profile { return harness.pending }, action: "approve", expectedTitle: "User Approved", expectedStatus: model.StatusApproved, expectedRole: model.RoleUser},
		{name: "reject pending", target: func(harness adminTestHarness) model.Profile { return harness.pending }, action: "reject", expectedTitle: "User Rejected", expectedStatus: model.StatusRejected, expectedRole: model.RoleUser},
		{name: "promote approved", target: func(harness adminTestHarness) model.Profile { return harness.approved }, action: "promote", expectedTitle: "User Promoted", expectedStatus: model.StatusApproved, expectedRole: model.RoleAdmin},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			harness := newAdminTestHarness(testingT)
			target := testCase.target(harness)

			status, body := harness.decide(testingT, target.ID, testCase.action)
			require.Equal(testingT, http.StatusOK, status, body)
			require.Equal(testingT, testCase.expectedTitle, toastTitle(testingT, body))

			var stored model.Profile
			require.NoError(testingT, harness.database.First(&stored, "id = ?", target.ID).Error)
			require.Equal(testingT, testCase.expectedStatus, stored.Status)
			require.Equal(testingT, testCase.expectedRole, stored.Role)
		})
	}
}

func TestDecideRejectsInvalidRequests(testingT *testing.T) {
	testCases := []struct {
		name           string
		target         func(adminTestHarness) string
		action         string
		expectedStatus int
		expectedCode   string
	}{
		{name: "demote self", target: func(harness adminTestHarness) string { return harness.admin.ID }, action: "demote", expectedStatus: http.StatusConflict, expectedCode: "action_not_allowed"},
		{name: "promote pending", target: func(harness adminTestHarness) string { return harness.pending.ID }, action: "promote", expectedStatus: http.StatusConflict, expectedCode: "action_not_allowed"},
		{name: "approve rejected", target: func(harness adminTestHarness) string { return harness.rejected.ID }, action: "approve", expectedStatus: http.StatusConflict, expectedCode: "action_not_allowed"},
		{name: "unknown action", target: func(harness adminTestHarness) string { return harness.pending.ID }, action: "ban", expectedStatus: http.StatusBadRequest, expectedCode: "unknown_action"},
		{name: "missing profile", target: func(adminTestHarness) string { return "missing-profile" }, action: "approve", expectedStatus: http.StatusNotFound, expectedCode: "not_found"},
	}

	harness := newAdminTestHarness(testingT)
	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			status, body := harness.decide(testingT, testCase.target(harness), testCase.action)
			require.Equal(testingT, testCase.expectedStatus, status, body)
			require.Equal(testingT, testCase.expectedCode, body[testErrorKey])
		})
	}
}
