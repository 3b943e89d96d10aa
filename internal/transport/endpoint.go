package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// ChatRoute is the fixed websocket route on the voice-chat backend.
const ChatRoute = "/chat"

// ResolveEndpoint derives the chat websocket endpoint from the server base
// URL, upgrading the scheme to its streaming variant (ws for http, wss for
// https) so a securely served page talks to a secure channel.
func ResolveEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", baseURL)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = ChatRoute
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
