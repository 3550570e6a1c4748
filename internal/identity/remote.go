package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/park285/cheese-arena/internal/jsonclient"
)

const DefaultVerifyPath = "/verify"

type verifyRequest struct {
	Credential string `json:"credential"`
}

type verifyResponse struct {
	Subject     string `json:"subject"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// RemoteVerifier posts credentials to an external verification endpoint.
type RemoteVerifier struct {
	client *jsonclient.Client
	path   string
}

func NewRemoteVerifier(client *jsonclient.Client, path string) *RemoteVerifier {
	if strings.TrimSpace(path) == "" {
		path = DefaultVerifyPath
	}
	return &RemoteVerifier{client: client, path: path}
}

func (v *RemoteVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrInvalidCredential
	}
	// verification has no side effects, so it is safe to retry
	out, err := jsonclient.Fetch[verifyResponse](ctx, v.client, jsonclient.Call{
		Method:     http.MethodPost,
		Path:       v.path,
		Body:       verifyRequest{Credential: credential},
		Idempotent: true,
	})
	if err != nil {
		if jsonclient.IsStatus(err, http.StatusUnauthorized, http.StatusForbidden) {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		return Identity{}, fmt.Errorf("verify credential: %w", err)
	}
	if strings.TrimSpace(out.Subject) == "" {
		return Identity{}, ErrMissingSubject
	}
	return Identity{
		Subject:     out.Subject,
		Username:    out.Username,
		DisplayName: SanitizeDisplayName(out.DisplayName),
		AvatarURL:   out.AvatarURL,
	}, nil
}
