package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/auth"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

// DomainSession wraps auth.Session for conversion to SessionToken via ToAPIType.
type DomainSession auth.Session

// SessionToken is the public view of a session after a refresh.
type SessionToken struct {
	SessionID        string    `doc:"Session identifier"                 json:"sessionId"`
	Token            string    `doc:"Access token"                       json:"token"`
	ExpiresAt        time.Time `doc:"When the access token expires"      json:"expiresAt"`
	RefreshExpiresAt time.Time `doc:"When the session can no longer be refreshed" json:"refreshExpiresAt"`
}

// RefreshRequest exchanges an expired access token, or a refresh token, for a new access token.
type RefreshRequest struct {
	Body struct {
		Token        string `doc:"Expired access token"            json:"token,omitempty"        required:"false"`
		RefreshToken string `doc:"Refresh token issued with the session" json:"refreshToken,omitempty" required:"false"`
	}
}

// RefreshResponse is the response for POST /auth/refresh.
type RefreshResponse struct {
	Body SessionToken
}

// ToAPIType can be used to convert a wrapped domain type to an API-safe type.
func (d DomainSession) ToAPIType() (SessionToken, error) {
	return SessionToken{
		SessionID:        d.ID,
		Token:            d.Token,
		ExpiresAt:        d.ExpiresAt,
		RefreshExpiresAt: d.RefreshExpiresAt,
	}, nil
}

// RegisterSessionRoutes sets up session token refresh.
func RegisterSessionRoutes(routerAPI huma.API, sessions *auth.SessionStore, apiPathPrefix string) {
	sessionsAPI := huma.NewGroup(routerAPI, apiPathPrefix)

	huma.Register(
		sessionsAPI,
		huma.Operation{
			OperationID: "refreshSession",
			Method:      http.MethodPost,
			Path:        "/refresh",
			Summary:     "Refresh a session access token",
			Tags:        []string{"Auth"},
		},
		func(ctx context.Context, input *RefreshRequest) (*RefreshResponse, error) {
			return handleRefresh(sessions, input)
		},
	)
}

// handleRefresh mints a new access token. The previous access token stops being valid.
func handleRefresh(sessions *auth.SessionStore, input *RefreshRequest) (*RefreshResponse, error) {
	var (
		sess auth.Session
		err  error
	)

	switch {
	case input.Body.RefreshToken != "":
		sess, err = sessions.Refresh(input.Body.RefreshToken)
	case input.Body.Token != "":
		sess, err = sessions.ValidateToken(input.Body.Token, true)
	default:
		return nil, fmt.Errorf("%w: token or refreshToken is required", errors.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}

	data, err := DomainSession(sess).ToAPIType()
	if err != nil {
		return nil, err
	}

	resp := &RefreshResponse{}
	resp.Body = data

	return resp, nil
}
