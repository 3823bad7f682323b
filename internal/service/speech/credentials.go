package speech

import (
	"errors"
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/config"
)

var errMissingCredentials = errors.New("volcengine speech config is missing app id or access token")

// resolveCredentials returns the trimmed app id and access token, falling back
// to the API key when no access token is set.
func resolveCredentials(cfg config.SpeechConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", errMissingCredentials
	}
	return appID, token, nil
}
