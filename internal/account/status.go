package account

import (
	"context"
	"fmt"

	"readshift/internal/api"
)

// Status is the debug panel: login state, token preview and backend reachability.
type Status struct {
	LoggedIn     bool
	Login        string
	TokenPreview string
	Backend      string
}

// Status checks the session and pings the server. Any HTTP answer counts as
// reachable; a non-2xx status is reported as "Error N".
func (a *Account) Status(ctx context.Context) Status {
	s := Status{
		LoggedIn:     a.session.LoggedIn(),
		Login:        "Not logged in",
		TokenPreview: a.session.Preview(),
	}
	if s.LoggedIn {
		s.Login = "Logged in"
	}
	err := a.backend.Health(ctx)
	switch code := api.StatusCode(err); {
	case err == nil:
		s.Backend = "Connected"
	case code != 0:
		s.Backend = fmt.Sprintf("Error %d", code)
	default:
		s.Backend = "Disconnected"
	}
	return s
}
