package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/gorilla/mux"
)

// handleUserTaken answers "1" when the uid cannot be registered, "0" when
// it is free.
func (s *Server) handleUserTaken(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	taken, err := s.users.Taken(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if taken {
		textResponse(w, http.StatusOK, "1")
		return
	}
	textResponse(w, http.StatusOK, "0")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	body, err := readBody(w, r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	var req map[string]json.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		weaveError(w, http.StatusBadRequest, common.WeaveMalformedJSON)
		return
	}
	var password string
	if raw, ok := req["password"]; !ok || json.Unmarshal(raw, &password) != nil {
		weaveError(w, http.StatusBadRequest, common.WeaveMissingPassword)
		return
	}

	if _, err := s.users.Register(r.Context(), uid, password); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	textResponse(w, http.StatusOK, uid)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	if err := s.users.Delete(r.Context(), h); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	textResponse(w, http.StatusOK, "0")
}

// handleChangePassword takes the new password as the raw request body.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)

	body, err := readBody(w, r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	if _, err := s.users.ChangePassword(r.Context(), h, string(body)); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			weaveError(w, http.StatusNotFound, common.WeaveInvalidUser)
			return
		}
		s.errorResponse(w, r, err)
		return
	}
	textResponse(w, http.StatusOK, "success")
}

// handleNode tells the client which storage node holds its data: always
// this server.
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	textResponse(w, http.StatusOK, baseURL(r))
}

func baseURL(r *http.Request) string {
	scheme := r.Header.Get(common.HeaderScheme)
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	prefix, _ := r.Context().Value(scriptNameKey).(string)
	return scheme + "://" + r.Host + prefix + "/"
}
