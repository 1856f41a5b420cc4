package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"bhs-files/internal/database"
	"bhs-files/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/jaevor/go-nanoid"
)

func (s *Server) generateUniqueID(ctx context.Context) (string, error) {
	maxRetries := 10

	generateID, err := nanoid.Standard(21)
	if err != nil {
		return "", fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}

	for i := 0; i < maxRetries; i++ {
		id := generateID()
		exists, err := s.store.NodeExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check for node existence: %w", err)
		}
		if !exists {
			return id, nil
		}
	}

	return "", fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}

// humanSize renders a byte count the way the node table stores it, e.g.
// "364.59 KB" or "2.00 MB".
func humanSize(bytes int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	default:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	}
}

// iconForFilename derives the stored icon tag from the upload's extension.
func iconForFilename(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp":
		return "image"
	case "pdf":
		return "pdf"
	case "doc", "docx":
		return "docx"
	case "xls", "xlsx":
		return "xlsx"
	case "mp4", "avi", "mov":
		return "video"
	case "mp3", "wav", "ogg":
		return "audio"
	default:
		return "file"
	}
}

type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

// @Summary      Create a folder
// @Description  Creates a folder node under the given parent (tree root when omitted). Owner fields are snapshotted from the caller.
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        createFolderRequest  body      CreateFolderRequest  true  "Folder attributes"
// @Success      201  {object}  models.Node
// @Failure      400  {string}  string "Invalid request"
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes/folder [post]
func (s *Server) CreateFolderHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Folder name cannot be empty", http.StatusBadRequest)
		return
	}

	if req.ParentID != nil && len(*req.ParentID) != 21 {
		http.Error(w, "Invalid ParentID format", http.StatusBadRequest)
		return
	}

	nodeID, err := s.generateUniqueID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	params := database.CreateNodeParams{
		ID:          nodeID,
		ParentID:    req.ParentID,
		Name:        req.Name,
		NodeType:    models.NodeTypeFolder,
		Icon:        "folder",
		Size:        "0 KB",
		OwnerName:   claims.DisplayName,
		OwnerAvatar: claims.AvatarURL,
	}

	node, err := s.store.CreateNode(r.Context(), params)
	if err != nil {
		if errors.Is(err, database.ErrParentMissing) {
			http.Error(w, "Parent folder does not exist", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create folder", http.StatusInternalServerError)
		return
	}

	s.store.LogAudit(r.Context(), claims.UserID, "node_created", node)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(node)
}

// @Summary      List children of a folder
// @Description  Lists the nodes whose parent matches the query (tree root when omitted), each with one level of its own children populated.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        parent_id  query     string  false  "Parent node ID"
// @Success      200  {array}   models.Node
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes [get]
func (s *Server) ListNodesHandler(w http.ResponseWriter, r *http.Request) {
	parentIDStr := r.URL.Query().Get("parent_id")

	var parentID *string
	if parentIDStr != "" {
		parentID = &parentIDStr
	}

	nodes, err := s.store.GetNodesByParentID(r.Context(), parentID)
	if err != nil {
		http.Error(w, "Failed to list nodes", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(nodes)
}

// @Summary      Get a single node
// @Description  Fetches one node by ID with its immediate children populated.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200  {object}  models.Node
// @Failure      404  {string}  string "Not Found"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes/{nodeId} [get]
func (s *Server) GetNodeHandler(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")
	if nodeID == "" {
		http.Error(w, "Node ID is required", http.StatusBadRequest)
		return
	}

	node, err := s.store.GetNodeByID(r.Context(), nodeID)
	if err != nil {
		http.Error(w, "Failed to retrieve node", http.StatusInternalServerError)
		return
	}
	if node == nil {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(node)
}

// @Summary      Upload a file
// @Description  Stores the blob on disk and creates a file node with the icon derived from the extension and a human-readable size.
// @Tags         nodes
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file       formData  file    true   "File content"
// @Param        parent_id  formData  string  false  "Parent folder ID"
// @Success      201  {object}  models.Node
// @Failure      400  {string}  string "Invalid request"
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes/file [post]
func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<30)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing multipart form", http.StatusBadRequest)
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error retrieving the file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	parentIDStr := r.FormValue("parent_id")
	var parentID *string
	if parentIDStr != "" {
		if len(parentIDStr) != 21 {
			http.Error(w, "Invalid ParentID format", http.StatusBadRequest)
			return
		}
		parentID = &parentIDStr
	}

	nodeID, err := s.generateUniqueID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.storage.Save(nodeID, file); err != nil {
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	params := database.CreateNodeParams{
		ID:          nodeID,
		ParentID:    parentID,
		Name:        handler.Filename,
		NodeType:    models.NodeTypeFile,
		Icon:        iconForFilename(handler.Filename),
		Size:        humanSize(handler.Size),
		OwnerName:   claims.DisplayName,
		OwnerAvatar: claims.AvatarURL,
	}

	node, err := s.store.CreateNode(r.Context(), params)
	if err != nil {
		// The blob is orphaned if this fails; remove it so disk and metadata
		// stay in step.
		s.storage.Delete(nodeID)
		if errors.Is(err, database.ErrParentMissing) {
			http.Error(w, "Parent folder does not exist", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create file record", http.StatusInternalServerError)
		return
	}

	s.store.LogAudit(r.Context(), claims.UserID, "node_created", node)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(node)
}

// @Summary      Download a file
// @Description  Streams the stored blob for a file node.
// @Tags         nodes
// @Produce      application/octet-stream
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200  {file}    binary
// @Failure      400  {string}  string "Cannot download a folder"
// @Failure      404  {string}  string "Not Found"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes/{nodeId}/download [get]
func (s *Server) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")
	if nodeID == "" {
		http.Error(w, "Node ID is required", http.StatusBadRequest)
		return
	}

	node, err := s.store.GetNodeByID(r.Context(), nodeID)
	if err != nil {
		http.Error(w, "Failed to retrieve file metadata", http.StatusInternalServerError)
		return
	}
	if node == nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if node.NodeType != models.NodeTypeFile {
		http.Error(w, "Cannot download a folder", http.StatusBadRequest)
		return
	}

	fileStream, err := s.storage.Get(node.ID)
	if err != nil {
		http.Error(w, "File not found on storage", http.StatusInternalServerError)
		return
	}
	defer fileStream.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+node.Name+"\"")
	w.Header().Set("Content-Type", "application/octet-stream")

	io.Copy(w, fileStream)
}

type UpdateNodeRequest struct {
	Name       *string `json:"name"`
	Icon       *string `json:"icon"`
	Size       *string `json:"size"`
	ParentID   *string `json:"parent_id"`
	MoveToRoot bool    `json:"move_to_root"`
}

// @Summary      Update a node
// @Description  Merges the provided fields into the node. A move is validated against the cycle guard first.
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId             path      string             true  "Node ID"
// @Param        updateNodeRequest  body      UpdateNodeRequest  true  "Fields to update"
// @Success      200  {object}  models.Node
// @Failure      400  {string}  string "Invalid request"
// @Failure      404  {string}  string "Not Found"
// @Failure      409  {string}  string "Move would create a cycle"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes/{nodeId} [patch]
func (s *Server) UpdateNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			http.Error(w, "Name cannot be empty", http.StatusBadRequest)
			return
		}
		req.Name = &trimmed
	}

	if req.ParentID != nil && len(*req.ParentID) != 21 {
		http.Error(w, "Invalid ParentID format", http.StatusBadRequest)
		return
	}

	if req.Name == nil && req.Icon == nil && req.Size == nil && req.ParentID == nil && !req.MoveToRoot {
		http.Error(w, "No update operation specified", http.StatusBadRequest)
		return
	}

	params := database.UpdateNodeParams{
		Name:       req.Name,
		Icon:       req.Icon,
		Size:       req.Size,
		ParentID:   req.ParentID,
		MoveToRoot: req.MoveToRoot,
	}

	node, err := s.store.UpdateNode(r.Context(), nodeID, params)
	if err != nil {
		if errors.Is(err, database.ErrCycleDetected) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, database.ErrParentMissing) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to update node", http.StatusInternalServerError)
		return
	}
	if node == nil {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}

	s.store.LogAudit(r.Context(), claims.UserID, "node_updated", node)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(node)
}

// @Summary      Delete a subtree
// @Description  Recursively deletes a node and all of its descendants in one transaction. Administrator role required.
// @Tags         nodes
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node ID"
// @Success      204  {string}  string "No Content"
// @Failure      403  {string}  string "Administrator role required"
// @Failure      404  {string}  string "Not Found"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /nodes/{nodeId} [delete]
func (s *Server) DeleteNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	if nodeID == "" {
		http.Error(w, "Node ID is required", http.StatusBadRequest)
		return
	}

	node, err := s.store.GetNodeByID(r.Context(), nodeID)
	if err != nil {
		http.Error(w, "Failed to retrieve node", http.StatusInternalServerError)
		return
	}
	if node == nil {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}

	if err := s.store.DeleteSubtree(r.Context(), nodeID); err != nil {
		http.Error(w, "Failed to delete node", http.StatusInternalServerError)
		return
	}

	s.store.LogAudit(r.Context(), claims.UserID, "node_deleted", map[string]string{
		"id":   node.ID,
		"name": node.Name,
		"type": node.NodeType,
	})

	w.WriteHeader(http.StatusNoContent)
}
