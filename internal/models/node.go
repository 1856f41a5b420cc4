package models

import "time"

const (
	NodeTypeFile   = "file"
	NodeTypeFolder = "folder"
)

// Node is a single entry in the hierarchical metadata store. A nil ParentID
// means the node sits at the tree root. OwnerName and OwnerAvatar are
// snapshotted from the creating user and never resolved live.
type Node struct {
	ID          string    `json:"id"`
	ParentID    *string   `json:"parent_id"`
	Name        string    `json:"name"`
	NodeType    string    `json:"node_type"`
	Icon        string    `json:"icon"`
	Size        string    `json:"size"`
	OwnerName   string    `json:"owner_name"`
	OwnerAvatar string    `json:"owner_avatar"`
	Date        time.Time `json:"date"`
	Children    []Node    `json:"children"`
}

// Crumb is one segment of a breadcrumb path, ordered root-first.
type Crumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
