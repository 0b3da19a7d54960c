package controlstore

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ats/internal/store"
)

// handleDecryptCredential returns the plaintext (access, secret) pair for a
// credential name. Only trusted in-fleet processes should ever reach this
// endpoint — it is not exposed past the fleet's internal network.
func (s *Server) handleDecryptCredential(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cred, err := s.cfg.Credentials.Latest(name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	accessKey, err := s.cfg.CryptoBox.Decrypt(cred.EncryptedAccessKey, cred.NonceAccess)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	secretKey, err := s.cfg.CryptoBox.Decrypt(cred.EncryptedSecretKey, cred.NonceSecret)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"access_key": accessKey,
		"secret_key": secretKey,
	})
}
