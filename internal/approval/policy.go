// Package approval decides the initial status of newly registered accounts.
package approval

import (
	"errors"
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	compileRuleError  = "approval: compile rule"
	evaluateRuleError = "approval: evaluate rule"
	emailDomainMarker = "@"
)

var ErrNonBooleanRule = errors.New("approval: rule must evaluate to a boolean")

// Applicant is the environment an approval rule is evaluated against.
type Applicant struct {
	Email      string
	FullName   string
	Phone      string
	Department string
	Domain     string
}

// NewApplicant derives an Applicant from registration details.
func NewApplicant(email string, details model.ProfileDetails) Applicant {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	domain := ""
	if separatorIndex := strings.LastIndex(normalizedEmail, emailDomainMarker); separatorIndex >= 0 {
		domain = normalizedEmail[separatorIndex+len(emailDomainMarker):]
	}
	return Applicant{
		Email:      normalizedEmail,
		FullName:   strings.TrimSpace(details.FullName),
		Phone:      strings.TrimSpace(details.Phone),
		Department: strings.TrimSpace(details.Department),
		Domain:     domain,
	}
}

// Policy evaluates an optional rule; without a rule every applicant waits for an administrator.
type Policy struct {
	expression string
	program    *exprvm.Program
}

// NewPolicy compiles the rule expression. An empty expression yields a policy that always answers pending.
func NewPolicy(expression string) (*Policy, error) {
	trimmedExpression := strings.TrimSpace(expression)
	if trimmedExpression == "" {
		return &Policy{}, nil
	}
	program, compileErr := exprlang.Compile(
		trimmedExpression,
		exprlang.Env(Applicant{}),
		exprlang.AsBool(),
	)
	if compileErr != nil {
		return nil, fmt.Errorf("%s: %w", compileRuleError, compileErr)
	}
	return &Policy{expression: trimmedExpression, program: program}, nil
}

// Expression returns the compiled rule text.
func (policy *Policy) Expression() string {
	if policy == nil {
		return ""
	}
	return policy.expression
}

// Evaluate returns approved when the rule matches the applicant and pending otherwise.
func (policy *Policy) Evaluate(applicant Applicant) (model.ProfileStatus, error) {
	if policy == nil || policy.program == nil {
		return model.StatusPending, nil
	}
	result, runErr := exprlang.Run(policy.program, applicant)
	if runErr != nil {
		return model.StatusPending, fmt.Errorf("%s: %w", evaluateRuleError, runErr)
	}
	matched, isBoolean := result.(bool)
	if !isBoolean {
		return model.StatusPending, ErrNonBooleanRule
	}
	if matched {
		return model.StatusApproved, nil
	}
	return model.StatusPending, nil
}
