package internal

import (
	"context"
	"net/http"

	"appshell/internal/auth"
	"appshell/internal/models"

	"github.com/google/uuid"
)

// ProfileReader is implemented by profile stores that can load a row back.
type ProfileReader interface {
	Get(ctx context.Context, id uuid.UUID) (models.Profile, error)
}

// getProfile returns the caller's profile. Without a readable profile store
// the profile is derived from the session alone.
func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())

	reader, ok := s.Profiles.(ProfileReader)
	if !ok {
		writeJSON(w, http.StatusOK, models.Profile{
			Base:  models.Base{ID: sess.User.ID},
			Email: sess.User.Email,
		})
		return
	}

	p, err := reader.Get(r.Context(), sess.User.ID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
