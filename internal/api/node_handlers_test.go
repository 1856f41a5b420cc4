package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bhs-files/internal/auth"
	"bhs-files/internal/database"
	"bhs-files/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// Helper for creating nodes in API tests.
func createTestNodeAPI(t *testing.T, name, nodeType string, parentID *string, claims *auth.AppClaims) *models.Node {
	t.Helper()
	id, err := testServer.generateUniqueID(context.Background())
	require.NoError(t, err)

	icon := "file"
	size := "1.00 MB"
	if nodeType == models.NodeTypeFolder {
		icon = "folder"
		size = "0 KB"
	}

	params := database.CreateNodeParams{
		ID:          id,
		ParentID:    parentID,
		Name:        name,
		NodeType:    nodeType,
		Icon:        icon,
		Size:        size,
		OwnerName:   claims.DisplayName,
		OwnerAvatar: claims.AvatarURL,
	}
	node, err := testServer.store.CreateNode(context.Background(), params)
	require.NoError(t, err)
	return node
}

func withClaims(req *http.Request, claims *auth.AppClaims) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), userContextKey, claims))
}

func TestAPI_CreateFolder_Success(t *testing.T) {
	payload := CreateFolderRequest{Name: "Immunization Records"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/api/v1/nodes/folder", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, withClaims(req, staffClaims))

	require.Equal(t, http.StatusCreated, rr.Code)
	var createdNode models.Node
	err := json.Unmarshal(rr.Body.Bytes(), &createdNode)
	require.NoError(t, err)
	require.Equal(t, "Immunization Records", createdNode.Name)
	require.Equal(t, models.NodeTypeFolder, createdNode.NodeType)
	require.Equal(t, "folder", createdNode.Icon)
	require.Equal(t, "0 KB", createdNode.Size)
	require.Len(t, createdNode.ID, 21)

	// Owner fields are snapshotted from the caller's claims.
	require.Equal(t, staffClaims.DisplayName, createdNode.OwnerName)
}

func TestAPI_CreateFolder_EmptyName(t *testing.T) {
	payload := CreateFolderRequest{Name: "  "}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/api/v1/nodes/folder", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, withClaims(req, staffClaims))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CreateFolder_MissingParent(t *testing.T) {
	// A well-formed ID that is not in the database.
	missingParent, err := testServer.generateUniqueID(context.Background())
	require.NoError(t, err)

	payload := CreateFolderRequest{Name: "Orphan", ParentID: &missingParent}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/api/v1/nodes/folder", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, withClaims(req, staffClaims))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CreateFolder_DuplicateNamesAllowed(t *testing.T) {
	parent := createTestNodeAPI(t, "Duplicate Parent", models.NodeTypeFolder, nil, staffClaims)

	for i := 0; i < 2; i++ {
		payload := CreateFolderRequest{Name: "Same Name", ParentID: &parent.ID}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest("POST", "/api/v1/nodes/folder", bytes.NewReader(body))
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, withClaims(req, staffClaims))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	var count int
	err := testServer.store.GetPool().QueryRow(context.Background(),
		`SELECT count(*) FROM nodes WHERE parent_id = $1 AND name = 'Same Name'`, parent.ID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 2, count, "sibling folders may share a name")
}

func TestListNodesHandler(t *testing.T) {
	parentFolder := createTestNodeAPI(t, "Parent Folder", models.NodeTypeFolder, nil, staffClaims)
	childFile := createTestNodeAPI(t, "Child File", models.NodeTypeFile, &parentFolder.ID, staffClaims)

	t.Run("should list root directory", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/nodes", nil)
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.ListNodesHandler).ServeHTTP(rr, withClaims(req, staffClaims))

		require.Equal(t, http.StatusOK, rr.Code)
		var nodes []models.Node
		err := json.Unmarshal(rr.Body.Bytes(), &nodes)
		require.NoError(t, err)

		found := false
		for _, node := range nodes {
			if node.ID == parentFolder.ID {
				found = true
				break
			}
		}
		require.True(t, found, "Expected to find the created parent folder in the root listing")
	})

	t.Run("should list subdirectory content", func(t *testing.T) {
		url := fmt.Sprintf("/api/v1/nodes?parent_id=%s", parentFolder.ID)
		req := httptest.NewRequest("GET", url, nil)
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.ListNodesHandler).ServeHTTP(rr, withClaims(req, staffClaims))

		require.Equal(t, http.StatusOK, rr.Code)
		var nodes []models.Node
		err := json.Unmarshal(rr.Body.Bytes(), &nodes)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		require.Equal(t, childFile.Name, nodes[0].Name)
	})
}

func TestGetNodeHandler(t *testing.T) {
	folder := createTestNodeAPI(t, "Single Folder", models.NodeTypeFolder, nil, staffClaims)
	createTestNodeAPI(t, "inside.txt", models.NodeTypeFile, &folder.ID, staffClaims)

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware).Get("/api/v1/nodes/{nodeId}", testServer.GetNodeHandler)

	t.Run("should return the node with children", func(t *testing.T) {
		req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/nodes/%s", folder.ID), nil)
		req.Header.Set("Authorization", "Bearer "+staffToken)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var node models.Node
		err := json.Unmarshal(rr.Body.Bytes(), &node)
		require.NoError(t, err)
		require.Equal(t, folder.ID, node.ID)
		require.Len(t, node.Children, 1)
		require.Equal(t, "inside.txt", node.Children[0].Name)
	})

	t.Run("should return 404 for an unknown node", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/nodes/non_existent_node", nil)
		req.Header.Set("Authorization", "Bearer "+staffToken)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestUpdateNodeHandler_Rename(t *testing.T) {
	nodeToRename := createTestNodeAPI(t, "Old Name", models.NodeTypeFolder, nil, staffClaims)

	payload := UpdateNodeRequest{Name: new(string)}
	*payload.Name = "New Name"
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("/api/v1/nodes/%s", nodeToRename.ID)
	req := httptest.NewRequest("PATCH", url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr := httptest.NewRecorder()

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware).Patch("/api/v1/nodes/{nodeId}", testServer.UpdateNodeHandler)
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	updatedNode, err := testServer.store.GetNodeByID(context.Background(), nodeToRename.ID)
	require.NoError(t, err)
	require.Equal(t, "New Name", updatedNode.Name)
}

func TestUpdateNodeHandler_Move(t *testing.T) {
	folder1 := createTestNodeAPI(t, "Folder 1", models.NodeTypeFolder, nil, staffClaims)
	folder2 := createTestNodeAPI(t, "Folder 2", models.NodeTypeFolder, nil, staffClaims)
	nodeToMove := createTestNodeAPI(t, "movable.txt", models.NodeTypeFile, &folder1.ID, staffClaims)

	payload := UpdateNodeRequest{ParentID: &folder2.ID}
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("/api/v1/nodes/%s", nodeToMove.ID)
	req := httptest.NewRequest("PATCH", url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr := httptest.NewRecorder()

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware).Patch("/api/v1/nodes/{nodeId}", testServer.UpdateNodeHandler)
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	updatedNode, err := testServer.store.GetNodeByID(context.Background(), nodeToMove.ID)
	require.NoError(t, err)
	require.NotNil(t, updatedNode.ParentID)
	require.Equal(t, folder2.ID, *updatedNode.ParentID)
}

func TestUpdateNodeHandler_CycleRejected(t *testing.T) {
	outer := createTestNodeAPI(t, "Outer", models.NodeTypeFolder, nil, staffClaims)
	inner := createTestNodeAPI(t, "Inner", models.NodeTypeFolder, &outer.ID, staffClaims)

	payload := UpdateNodeRequest{ParentID: &inner.ID}
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("/api/v1/nodes/%s", outer.ID)
	req := httptest.NewRequest("PATCH", url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr := httptest.NewRecorder()

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware).Patch("/api/v1/nodes/{nodeId}", testServer.UpdateNodeHandler)
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)

	// The tree is untouched.
	current, err := testServer.store.GetNodeByID(context.Background(), outer.ID)
	require.NoError(t, err)
	require.Nil(t, current.ParentID)
}

func TestUpdateNodeHandler_NoOperation(t *testing.T) {
	node := createTestNodeAPI(t, "noop.txt", models.NodeTypeFile, nil, staffClaims)

	body, _ := json.Marshal(UpdateNodeRequest{})
	url := fmt.Sprintf("/api/v1/nodes/%s", node.ID)
	req := httptest.NewRequest("PATCH", url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr := httptest.NewRecorder()

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware).Patch("/api/v1/nodes/{nodeId}", testServer.UpdateNodeHandler)
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteNodeHandler_RequiresAdmin(t *testing.T) {
	folder := createTestNodeAPI(t, "Protected Folder", models.NodeTypeFolder, nil, staffClaims)

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware, testServer.RequireAdmin).Delete("/api/v1/nodes/{nodeId}", testServer.DeleteNodeHandler)

	url := fmt.Sprintf("/api/v1/nodes/%s", folder.ID)
	req := httptest.NewRequest("DELETE", url, nil)
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)

	// The node must survive a rejected delete.
	exists, err := testServer.store.NodeExists(context.Background(), folder.ID)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDeleteNodeHandler_CascadesSubtree(t *testing.T) {
	folder := createTestNodeAPI(t, "Doomed Folder", models.NodeTypeFolder, nil, staffClaims)
	sub := createTestNodeAPI(t, "Doomed Sub", models.NodeTypeFolder, &folder.ID, staffClaims)
	file := createTestNodeAPI(t, "doomed.txt", models.NodeTypeFile, &sub.ID, staffClaims)

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware, testServer.RequireAdmin).Delete("/api/v1/nodes/{nodeId}", testServer.DeleteNodeHandler)

	url := fmt.Sprintf("/api/v1/nodes/%s", folder.ID)
	req := httptest.NewRequest("DELETE", url, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)

	var count int
	err := testServer.store.GetPool().QueryRow(context.Background(),
		`SELECT count(*) FROM nodes WHERE id IN ($1, $2, $3)`, folder.ID, sub.ID, file.ID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count, "the whole subtree should be deleted")
}

func TestDeleteNodeHandler_NotFound(t *testing.T) {
	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware, testServer.RequireAdmin).Delete("/api/v1/nodes/{nodeId}", testServer.DeleteNodeHandler)

	req := httptest.NewRequest("DELETE", "/api/v1/nodes/non_existent_node", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadFileHandler(t *testing.T) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "census.xlsx")
	require.NoError(t, err)
	fileContent := "household,members\nCruz,5\n"
	part.Write([]byte(fileContent))
	writer.Close()

	req := httptest.NewRequest("POST", "/api/v1/nodes/file", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(rr, withClaims(req, staffClaims))

	require.Equal(t, http.StatusCreated, rr.Code)

	var uploadedNode models.Node
	err = json.Unmarshal(rr.Body.Bytes(), &uploadedNode)
	require.NoError(t, err)
	require.Equal(t, "census.xlsx", uploadedNode.Name)
	require.Equal(t, models.NodeTypeFile, uploadedNode.NodeType)
	require.Equal(t, "xlsx", uploadedNode.Icon, "icon should be derived from the extension")
	require.Equal(t, fmt.Sprintf("%.2f KB", float64(len(fileContent))/1024), uploadedNode.Size)
	require.Equal(t, staffClaims.DisplayName, uploadedNode.OwnerName)

	stream, err := testServer.storage.Get(uploadedNode.ID)
	require.NoError(t, err, "File should exist in storage after upload")
	stream.Close()
}

func TestDownloadFileHandler(t *testing.T) {
	fileNode := createTestNodeAPI(t, "referral_letter.pdf", models.NodeTypeFile, nil, staffClaims)
	fileContent := "patient referral details"
	err := testServer.storage.Save(fileNode.ID, strings.NewReader(fileContent))
	require.NoError(t, err)

	router := chi.NewRouter()
	router.With(testServer.AuthMiddleware).Get("/api/v1/nodes/{nodeId}/download", testServer.DownloadFileHandler)

	url := fmt.Sprintf("/api/v1/nodes/%s/download", fileNode.ID)
	req := httptest.NewRequest("GET", url, nil)
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, fileContent, rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Disposition"), "attachment; filename=\"referral_letter.pdf\"")

	// Folders are not downloadable.
	folder := createTestNodeAPI(t, "Not A File", models.NodeTypeFolder, nil, staffClaims)
	req = httptest.NewRequest("GET", fmt.Sprintf("/api/v1/nodes/%s/download", folder.ID), nil)
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr = httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
