package app

import (
	"context"
	"net/http"
)

type sessionKey string

const (
	SessionKeyRequesterId = sessionKey("requesterID")
)

func (s sessionKey) String() string {
	return string(s)
}

func contextSetRequesterID(r *http.Request, requesterID string) *http.Request {
	ctx := context.WithValue(r.Context(), SessionKeyRequesterId, requesterID)
	return r.WithContext(ctx)
}

// contextRequesterID returns the requester resolved by identifyRequester, or
// "" outside of it.
func contextRequesterID(r *http.Request) string {
	requesterID, _ := r.Context().Value(SessionKeyRequesterId).(string)
	return requesterID
}

func (app *application) contextGetRequesterID(r *http.Request) string {
	requesterID := contextRequesterID(r)
	if requesterID == "" {
		panic("missing requester id from context")
	}

	return requesterID
}
