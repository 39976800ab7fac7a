package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/skopos/internal/natsbus"
	"github.com/mtzanidakis/skopos/internal/store"
)

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.store.ListSecrets()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if secrets == nil {
		secrets = []store.Secret{}
	}
	jsonResponse(w, secrets)
}

// createSecret stores one site credential, encrypted at rest. Posting the
// same host again replaces its value.
func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Host        string `json:"host"`
		Username    string `json:"username"`
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Host == "" || body.Value == "" {
		jsonError(w, "host and value are required", http.StatusBadRequest)
		return
	}

	ciphertext, nonce, err := s.vault.Encrypt([]byte(body.Value), body.Host)
	if err != nil {
		jsonError(w, "encryption failed", http.StatusInternalServerError)
		return
	}

	existing, _ := s.store.GetSecretByHost(body.Host)

	sec := &store.Secret{
		ID:          uuid.New().String(),
		Host:        body.Host,
		Username:    body.Username,
		Value:       ciphertext,
		Nonce:       nonce,
		Description: body.Description,
	}
	if err := s.store.SaveSecret(sec); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// An upsert on an existing host keeps the original row id
	saved, err := s.store.GetSecretByHost(body.Host)
	if err != nil || saved == nil {
		jsonError(w, "secret lookup after save failed", http.StatusInternalServerError)
		return
	}

	eventType := "secret_created"
	if existing != nil {
		eventType = "secret_updated"
	}
	s.publishSecretEvent(eventType, saved.ID, saved.Host)

	jsonResponse(w, map[string]any{
		"id":          saved.ID,
		"host":        saved.Host,
		"username":    saved.Username,
		"description": saved.Description,
	})
}

func (s *Server) getSecret(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sec, err := s.store.GetSecret(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sec == nil {
		jsonError(w, "secret not found", http.StatusNotFound)
		return
	}
	// Value and nonce never leave the store layer's json:"-" fields
	jsonResponse(w, sec)
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteSecret(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.publishSecretEvent("secret_deleted", id, "")
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) publishSecretEvent(eventType, secretID, host string) {
	if s.nats == nil {
		return
	}
	event := map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":   secretID,
			"host": host,
		},
	}
	_ = s.nats.PublishJSON(natsbus.TopicSystem, event)
}
