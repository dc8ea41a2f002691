// Package auth provides token sources for the upstream API. Interactive
// OAuth flows live outside this tool; callers supply a token through the
// environment or an explicit value.
package auth

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"
)

// StaticTokenSource wraps a literal access token.
func StaticTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
}

// envTokenSource reads the token from an environment variable on each
// request, so refreshed tokens are picked up without a restart.
type envTokenSource struct {
	variable string
}

// EnvTokenSource reads the access token from the named environment
// variable. The default variable is RAPS_ACCESS_TOKEN.
func EnvTokenSource(variable string) oauth2.TokenSource {
	if variable == "" {
		variable = "RAPS_ACCESS_TOKEN"
	}
	return &envTokenSource{variable: variable}
}

func (s *envTokenSource) Token() (*oauth2.Token, error) {
	value := os.Getenv(s.variable)
	if value == "" {
		return nil, fmt.Errorf(
			"no access token found: set %s or configure a profile token_env", s.variable)
	}
	return &oauth2.Token{AccessToken: value}, nil
}
