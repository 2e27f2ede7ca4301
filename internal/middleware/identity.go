package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/darry-Jnr/codemap-server-go/internal/httputil"
)

type contextKey string

const ParticipantContextKey contextKey = "participant"

// Participant is the caller's identity: an opaque device-generated id and a
// display name. There are no credentials in this product; the id only
// partitions write authority between session roles.
type Participant struct {
	ID   string
	Name string
}

func GetParticipant(ctx context.Context) *Participant {
	if p, ok := ctx.Value(ParticipantContextKey).(*Participant); ok {
		return p
	}
	return nil
}

const (
	ParticipantIDHeader   = "X-Participant-ID"
	ParticipantNameHeader = "X-Participant-Name"

	maxDisplayNameLength = 40
)

type IdentityMiddleware struct{}

func NewIdentityMiddleware() *IdentityMiddleware {
	return &IdentityMiddleware{}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ParticipantIDHeader))
		name := strings.TrimSpace(r.Header.Get(ParticipantNameHeader))

		if id == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing participant id",
			})
			return
		}
		if len(name) > maxDisplayNameLength {
			name = name[:maxDisplayNameLength]
		}

		participant := &Participant{ID: id, Name: name}
		ctx := context.WithValue(r.Context(), ParticipantContextKey, participant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
