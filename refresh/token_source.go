package refresh

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx         context.Context
	coordinator *Coordinator
	window      time.Duration
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	t, err := ts.coordinator.EnsureFresh(ts.ctx, ts.window)
	if err != nil {
		return nil, err
	}
	return t.OAuth2(), nil
}
