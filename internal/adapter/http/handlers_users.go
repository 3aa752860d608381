package adapthttp

import (
	"net/http"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if !s.parseRequest(w, r, body.parse(r)) {
		return
	}

	u, err := s.auth.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r.Context()))
}
