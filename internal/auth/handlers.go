// Package auth mounts Google sign-in on top of GAuss, resolving the callback URL from proxy headers per request.
package auth

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/temirov/GAuss/pkg/constants"
	"github.com/temirov/GAuss/pkg/gauss"
	"go.uber.org/zap"
)

const (
	headerForwarded        = "Forwarded"
	headerXForwardedProto  = "X-Forwarded-Proto"
	headerXForwardedHost   = "X-Forwarded-Host"
	headerXForwardedPort   = "X-Forwarded-Port"
	forwardedKeyProto      = "proto"
	forwardedKeyHost       = "host"
	headerListSeparator    = ","
	forwardedPairSeparator = ";"
	urlSchemeHTTPS         = "https"

	logEventResolveGoogleFlow = "resolve_google_flow"
	logFieldBaseURL           = "base_url"
	createServiceError        = "auth: create google service"
	createHandlersError       = "auth: create google handlers"
	parseBaseURLError         = "auth: parse public base url"
)

var (
	// ErrMissingClientCredentials indicates the Google client id or secret is empty.
	ErrMissingClientCredentials = errors.New("auth: missing google client credentials")
	errEmptyHost                = errors.New("auth: request carries no host")
)

// Config captures dependencies for building the Google sign-in routes.
type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	PublicBaseURL      string
	LocalRedirectPath  string
	Scopes             []string
	LoginTemplate      string
	Logger             *zap.Logger
}

// Handlers serves the Google redirect and callback for whichever host the request arrived on.
type Handlers struct {
	configuration     Config
	configuredBaseURL *url.URL
	flowsByBaseURL    map[string]*gauss.Handlers
	flowsMutex        sync.RWMutex
	logger            *zap.Logger
}

// NewHandlers validates the configuration and primes the flow for the configured public base URL.
func NewHandlers(configuration Config) (*Handlers, error) {
	if strings.TrimSpace(configuration.GoogleClientID) == "" || strings.TrimSpace(configuration.GoogleClientSecret) == "" {
		return nil, ErrMissingClientCredentials
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL, parseErr := url.Parse(configuration.PublicBaseURL)
	if parseErr != nil {
		return nil, fmt.Errorf("%s: %w", parseBaseURLError, parseErr)
	}

	handlers := &Handlers{
		configuration:     configuration,
		configuredBaseURL: baseURL,
		flowsByBaseURL:    make(map[string]*gauss.Handlers),
		logger:            logger,
	}
	if _, flowErr := handlers.flowFor(configuration.PublicBaseURL); flowErr != nil {
		return nil, flowErr
	}
	return handlers, nil
}

// RegisterRoutes mounts the Google redirect and callback endpoints. Sign-out stays with the session owner.
func (handlers *Handlers) RegisterRoutes(router gin.IRoutes) {
	router.GET(constants.GoogleAuthPath, gin.WrapF(handlers.handleGoogleAuth))
	router.GET(constants.CallbackPath, gin.WrapF(handlers.handleCallback))
}

func (handlers *Handlers) handleGoogleAuth(responseWriter http.ResponseWriter, request *http.Request) {
	flow, flowErr := handlers.flowForRequest(request)
	if flowErr != nil {
		handlers.logger.Warn(logEventResolveGoogleFlow, zap.Error(flowErr))
		http.Error(responseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	flow.Login(responseWriter, request)
}

func (handlers *Handlers) handleCallback(responseWriter http.ResponseWriter, request *http.Request) {
	flow, flowErr := handlers.flowForRequest(request)
	if flowErr != nil {
		handlers.logger.Warn(logEventResolveGoogleFlow, zap.Error(flowErr))
		http.Error(responseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	flow.Callback(responseWriter, request)
}

func (handlers *Handlers) flowForRequest(request *http.Request) (*gauss.Handlers, error) {
	baseURL, baseErr := handlers.baseURLForRequest(request)
	if baseErr != nil {
		return nil, baseErr
	}
	return handlers.flowFor(baseURL)
}

func (handlers *Handlers) flowFor(baseURL string) (*gauss.Handlers, error) {
	handlers.flowsMutex.RLock()
	cachedFlow := handlers.flowsByBaseURL[baseURL]
	handlers.flowsMutex.RUnlock()
	if cachedFlow != nil {
		return cachedFlow, nil
	}

	handlers.flowsMutex.Lock()
	defer handlers.flowsMutex.Unlock()
	if cachedFlow = handlers.flowsByBaseURL[baseURL]; cachedFlow != nil {
		return cachedFlow, nil
	}

	service, serviceErr := gauss.NewService(
		handlers.configuration.GoogleClientID,
		handlers.configuration.GoogleClientSecret,
		baseURL,
		handlers.configuration.LocalRedirectPath,
		handlers.configuration.Scopes,
		handlers.configuration.LoginTemplate,
	)
	if serviceErr != nil {
		return nil, fmt.Errorf("%s: %w", createServiceError, serviceErr)
	}
	flow, flowErr := gauss.NewHandlers(service)
	if flowErr != nil {
		return nil, fmt.Errorf("%s: %w", createHandlersError, flowErr)
	}
	handlers.flowsByBaseURL[baseURL] = flow
	handlers.logger.Debug(logEventResolveGoogleFlow, zap.String(logFieldBaseURL, baseURL))
	return flow, nil
}

func (handlers *Handlers) baseURLForRequest(request *http.Request) (string, error) {
	forwarded := forwardedParameters(request.Header.Get(headerForwarded))
	resolved := *handlers.configuredBaseURL

	resolved.Host = firstNonEmpty(forwarded[forwardedKeyHost], listHead(request.Header.Get(headerXForwardedHost)), request.Host)
	if resolved.Host == "" {
		return "", errEmptyHost
	}
	if port := listHead(request.Header.Get(headerXForwardedPort)); port != "" && !strings.Contains(resolved.Host, ":") {
		resolved.Host = net.JoinHostPort(resolved.Host, port)
	}

	transportScheme := ""
	if request.TLS != nil {
		transportScheme = urlSchemeHTTPS
	}
	resolved.Scheme = strings.ToLower(firstNonEmpty(forwarded[forwardedKeyProto], listHead(request.Header.Get(headerXForwardedProto)), transportScheme, resolved.Scheme))
	return resolved.String(), nil
}

// forwardedParameters keeps the first non-empty value of each key across the elements of an RFC 7239 header.
func forwardedParameters(headerValue string) map[string]string {
	parameters := make(map[string]string)
	for _, element := range strings.Split(headerValue, headerListSeparator) {
		for _, pair := range strings.Split(element, forwardedPairSeparator) {
			key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
			value = strings.Trim(strings.TrimSpace(value), `"`)
			key = strings.ToLower(key)
			if !found || value == "" || parameters[key] != "" {
				continue
			}
			parameters[key] = value
		}
	}
	return parameters
}

func listHead(headerValue string) string {
	for _, item := range strings.Split(headerValue, headerListSeparator) {
		if trimmedItem := strings.TrimSpace(item); trimmedItem != "" {
			return trimmedItem
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
