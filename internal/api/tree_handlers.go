package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// @Summary      Fetch the full tree
// @Description  Materializes the whole subtree under root_id (the entire forest when omitted), nested to unbounded depth with siblings ordered by name.
// @Tags         tree
// @Produce      json
// @Security     BearerAuth
// @Param        root_id  query     string  false  "Root node ID"
// @Success      200  {array}   models.Node
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /tree [get]
func (s *Server) FetchTreeHandler(w http.ResponseWriter, r *http.Request) {
	rootIDStr := r.URL.Query().Get("root_id")

	var rootID *string
	if rootIDStr != "" {
		rootID = &rootIDStr
	}

	tree, err := s.store.FetchTree(r.Context(), rootID)
	if err != nil {
		http.Error(w, "Failed to fetch tree", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tree)
}

// @Summary      Resolve a breadcrumb path
// @Description  Walks parent pointers from the node up to the root and returns the path root-first. A missing ancestor truncates the path rather than failing.
// @Tags         tree
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200  {array}   models.Crumb
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes/{nodeId}/breadcrumb [get]
func (s *Server) BreadcrumbHandler(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")
	if nodeID == "" {
		http.Error(w, "Node ID is required", http.StatusBadRequest)
		return
	}

	path, err := s.store.ResolveBreadcrumb(r.Context(), nodeID)
	if err != nil {
		http.Error(w, "Failed to resolve breadcrumb", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(path)
}
