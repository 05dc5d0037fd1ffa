package approval_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/safecall/internal/approval"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	testHospitalRule   = `Domain == "hospital.example" && Department != ""`
	testApplicantEmail = " Doctor@Hospital.Example "
)

func TestNewApplicantDerivesDomain(t *testing.T) {
	applicant := approval.NewApplicant(testApplicantEmail, model.ProfileDetails{
		FullName:   " Dr. Ada ",
		Department: " Emergency Medicine ",
	})
	require.Equal(t, "doctor@hospital.example", applicant.Email)
	require.Equal(t, "hospital.example", applicant.Domain)
	require.Equal(t, "Dr. Ada", applicant.FullName)
	require.Equal(t, "Emergency Medicine", applicant.Department)
}

func TestPolicyEvaluate(t *testing.T) {
	testCases := []struct {
		name           string
		expression     string
		applicant      approval.Applicant
		expectedStatus model.ProfileStatus
	}{
		{
			name:           "no rule keeps accounts pending",
			expression:     "",
			applicant:      approval.Applicant{Domain: "hospital.example"},
			expectedStatus: model.StatusPending,
		},
		{
			name:           "matching rule approves",
			expression:     testHospitalRule,
			applicant:      approval.NewApplicant(testApplicantEmail, model.ProfileDetails{Department: "Surgery"}),
			expectedStatus: model.StatusApproved,
		},
		{
			name:           "non matching domain stays pending",
			expression:     testHospitalRule,
			applicant:      approval.NewApplicant("someone@elsewhere.example", model.ProfileDetails{Department: "Surgery"}),
			expectedStatus: model.StatusPending,
		},
		{
			name:           "missing department stays pending",
			expression:     testHospitalRule,
			applicant:      approval.NewApplicant(testApplicantEmail, model.ProfileDetails{}),
			expectedStatus: model.StatusPending,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(testingT *testing.T) {
			policy, policyErr := approval.NewPolicy(testCase.expression)
			require.NoError(testingT, policyErr)

			status, evaluateErr := policy.Evaluate(testCase.applicant)
			require.NoError(testingT, evaluateErr)
			require.Equal(testingT, testCase.expectedStatus, status)
		})
	}
}

func TestNewPolicyRejectsInvalidRules(t *testing.T) {
	testCases := []struct {
		name       string
		expression string
	}{
		{name: "syntax error", expression: `Domain ==`},
		{name: "unknown field", expression: `Hospital == "x"`},
		{name: "non boolean", expression: `Domain`},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(testingT *testing.T) {
			_, policyErr := approval.NewPolicy(testCase.expression)
			require.Error(testingT, policyErr)
		})
	}
}

func TestNilPolicyKeepsAccountsPending(t *testing.T) {
	var policy *approval.Policy
	status, err := policy.Evaluate(approval.Applicant{})
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, status)
	require.Empty(t, policy.Expression())
}
