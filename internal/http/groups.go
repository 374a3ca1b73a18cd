package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

type createGroupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	views, err := s.Groups.ForCommuter(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	g, err := s.Groups.Create(r.Context(), mux.Vars(r)["id"], req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.Groups.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	g, err := s.Groups.AddMember(r.Context(), vars["id"], vars["commuter_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	g, err := s.Groups.RemoveMember(r.Context(), vars["id"], vars["commuter_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
