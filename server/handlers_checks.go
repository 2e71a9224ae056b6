package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/planningcenter/pco-oauth-bridge/identity"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

// backgroundCheckRequest is the body of both server-to-server endpoints.
type backgroundCheckRequest struct {
	PersonID string `json:"personId"`
	Identity string `json:"identity"`
}

// PreflightHandler backs the OPTIONS routes. The CORS middleware answers
// preflights before the chain reaches here; this keeps the route registered
// with an explicit handler either way.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// AddBackgroundCheckHandler records a cleared background check for the
// person named in the request, acting on behalf of the organization the
// verified identity assertion claims.
func (s *Server) AddBackgroundCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, claims, tok, ok := s.authorizeCheckRequest(w, r)
		if !ok {
			return
		}

		if err := s.api(r, tok).CreateBackgroundCheck(r.Context(), req.PersonID); err != nil {
			s.writeUpstreamError(w, err)
			return
		}

		log.Info().Int64("organization_id", claims.OrganizationID).Str("person_id", req.PersonID).Msg("background check added")
		writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
	}
}

// DeleteBackgroundCheckHandler removes every background check recorded for
// the person named in the request.
func (s *Server) DeleteBackgroundCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, claims, tok, ok := s.authorizeCheckRequest(w, r)
		if !ok {
			return
		}

		api := s.api(r, tok)
		checks, err := api.ListBackgroundChecks(r.Context(), req.PersonID)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		for _, check := range checks {
			if err := api.DeleteBackgroundCheck(r.Context(), req.PersonID, check.ID); err != nil {
				s.writeUpstreamError(w, err)
				return
			}
		}

		log.Info().Int64("organization_id", claims.OrganizationID).Str("person_id", req.PersonID).Msg("background checks deleted")
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// authorizeCheckRequest runs the shared gate for the server-to-server
// endpoints: decode the body, verify the identity assertion, then resolve a
// fresh token for the claimed organization. A failed verification is never
// downgraded to trusting the claim.
func (s *Server) authorizeCheckRequest(w http.ResponseWriter, r *http.Request) (*backgroundCheckRequest, *identity.Claims, *oauth2.Token, bool) {
	var req backgroundCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PersonID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return nil, nil, nil, false
	}

	claims, err := s.verifier.Verify(req.Identity)
	if err != nil {
		log.Warn().Err(err).Msg("identity assertion rejected")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid identity"})
		return nil, nil, nil, false
	}

	tok, _, err := s.tokens.ForOrganization(r.Context(), claims.OrganizationID, false)
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.ErrNotAuthenticated), apperrors.Is(err, apperrors.ErrRefreshInvalid):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization not authorized"})
		return nil, nil, nil, false
	case apperrors.Is(err, apperrors.ErrRefreshTransient):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "token refresh temporarily unavailable"})
		return nil, nil, nil, false
	default:
		log.Error().Err(err).Msg("credential lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return nil, nil, nil, false
	}

	return &req, claims, tok, true
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	if apperrors.Is(err, apperrors.ErrUpstreamUnauthorized) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization not authorized"})
		return
	}
	log.Error().Err(err).Msg("upstream call failed")
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
