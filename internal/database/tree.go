package database

import (
	"context"
	"errors"
	"fmt"

	"bhs-files/internal/models"

	"github.com/jackc/pgx/v5"
)

// FetchTree materializes the full subtree under rootID (nil for the whole
// forest). Siblings are ordered by name at every level; file nodes always get
// an empty Children slice. One query is issued per folder visited, and any
// store error aborts the whole fetch - no partial tree is returned.
func (q *Queries) FetchTree(ctx context.Context, rootID *string) ([]models.Node, error) {
	nodes, err := q.fetchLevel(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("fetch tree: %w", err)
	}
	return nodes, nil
}

func (q *Queries) fetchLevel(ctx context.Context, parentID *string) ([]models.Node, error) {
	nodes, err := q.listDirectChildren(ctx, parentID, orderByName)
	if err != nil {
		return nil, err
	}

	for i := range nodes {
		if nodes[i].NodeType != models.NodeTypeFolder {
			continue
		}
		children, err := q.fetchLevel(ctx, &nodes[i].ID)
		if err != nil {
			return nil, err
		}
		nodes[i].Children = children
	}

	return nodes, nil
}

// ResolveBreadcrumb walks parent pointers from the given node up to the root
// and returns the path root-first. A missing ancestor truncates the path
// instead of failing, so a dangling parent reference yields a shorter
// breadcrumb rather than an error.
func (q *Queries) ResolveBreadcrumb(ctx context.Context, nodeID string) ([]models.Crumb, error) {
	var path []models.Crumb

	current := &nodeID
	for current != nil {
		var crumb models.Crumb
		var parentID *string
		err := q.db.QueryRow(ctx,
			`SELECT id, name, parent_id FROM nodes WHERE id = $1`, *current,
		).Scan(&crumb.ID, &crumb.Name, &parentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				break
			}
			return nil, err
		}

		path = append([]models.Crumb{crumb}, path...)
		current = parentID
	}

	if path == nil {
		path = []models.Crumb{}
	}

	return path, nil
}

// DeleteSubtree removes a node and all of its descendants, children before
// parent. Callers wanting atomicity run it through Store.DeleteSubtree, which
// wraps the whole cascade in one transaction.
func (q *Queries) DeleteSubtree(ctx context.Context, nodeID string) error {
	children, err := q.listDirectChildren(ctx, &nodeID, orderByName)
	if err != nil {
		return fmt.Errorf("delete subtree: %w", err)
	}

	for _, child := range children {
		if err := q.DeleteSubtree(ctx, child.ID); err != nil {
			return err
		}
	}

	return q.DeleteNode(ctx, nodeID)
}

// DeleteSubtree is the transactional form: either the whole subtree goes or
// none of it does.
func (s *Store) DeleteSubtree(ctx context.Context, nodeID string) error {
	return s.ExecTx(ctx, func(q *Queries) error {
		return q.DeleteSubtree(ctx, nodeID)
	})
}
