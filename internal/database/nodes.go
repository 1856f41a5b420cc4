package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bhs-files/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrCycleDetected = errors.New("target folder is inside the node's own subtree")
	ErrParentMissing = errors.New("target folder does not exist")
)

// maxAncestorDepth bounds the upward walk used by the cycle guard so a
// corrupted chain cannot loop forever.
const maxAncestorDepth = 128

const nodeColumns = `id, parent_id, name, node_type, icon, size, owner_name, owner_avatar, date`

func scanNode(row pgx.Row) (*models.Node, error) {
	var node models.Node
	err := row.Scan(
		&node.ID,
		&node.ParentID,
		&node.Name,
		&node.NodeType,
		&node.Icon,
		&node.Size,
		&node.OwnerName,
		&node.OwnerAvatar,
		&node.Date,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

type CreateNodeParams struct {
	ID          string
	ParentID    *string
	Name        string
	NodeType    string
	Icon        string
	Size        string
	OwnerName   string
	OwnerAvatar string
	Date        *time.Time
}

// CreateNode inserts one row. Duplicate names within a parent are allowed;
// there is no uniqueness constraint to trip over.
func (q *Queries) CreateNode(ctx context.Context, arg CreateNodeParams) (*models.Node, error) {
	query := `
		INSERT INTO nodes (id, parent_id, name, node_type, icon, size, owner_name, owner_avatar, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + nodeColumns

	date := time.Now()
	if arg.Date != nil {
		date = *arg.Date
	}

	row := q.db.QueryRow(ctx, query,
		arg.ID,
		arg.ParentID,
		arg.Name,
		arg.NodeType,
		arg.Icon,
		arg.Size,
		arg.OwnerName,
		arg.OwnerAvatar,
		date,
	)

	node, err := scanNode(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrParentMissing
		}
		return nil, err
	}

	return node, nil
}

func (q *Queries) NodeExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM nodes WHERE id = $1)"
	err := q.db.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetNodeByID fetches one node with its immediate children populated. The
// children's own Children slices are left empty; deeper levels come from
// FetchTree.
func (q *Queries) GetNodeByID(ctx context.Context, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`

	node, err := scanNode(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	node.Children, err = q.listDirectChildren(ctx, &node.ID, orderDefault)
	if err != nil {
		return nil, err
	}

	return node, nil
}

// GetNodesByParentID lists the children of a parent (nil for the tree root),
// each carrying one level of its own immediate children. A missing or empty
// parent yields an empty slice, never an error.
func (q *Queries) GetNodesByParentID(ctx context.Context, parentID *string) ([]models.Node, error) {
	nodes, err := q.listDirectChildren(ctx, parentID, orderDefault)
	if err != nil {
		return nil, err
	}

	for i := range nodes {
		children, err := q.listDirectChildren(ctx, &nodes[i].ID, orderDefault)
		if err != nil {
			return nil, err
		}
		nodes[i].Children = children
	}

	return nodes, nil
}

type nodeOrder string

const (
	// orderDefault matches the listing UI: folders first, then by name.
	orderDefault nodeOrder = "node_type DESC, name"
	// orderByName is the sibling order guaranteed by FetchTree.
	orderByName nodeOrder = "name"
)

func (q *Queries) listDirectChildren(ctx context.Context, parentID *string, order nodeOrder) ([]models.Node, error) {
	var rows pgx.Rows
	var err error

	if parentID == nil {
		query := `SELECT ` + nodeColumns + ` FROM nodes WHERE parent_id IS NULL ORDER BY ` + string(order)
		rows, err = q.db.Query(ctx, query)
	} else {
		query := `SELECT ` + nodeColumns + ` FROM nodes WHERE parent_id = $1 ORDER BY ` + string(order)
		rows, err = q.db.Query(ctx, query, *parentID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		node.Children = []models.Node{}
		nodes = append(nodes, *node)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if nodes == nil {
		return []models.Node{}, nil
	}

	return nodes, nil
}

type UpdateNodeParams struct {
	Name *string
	Icon *string
	Size *string
	// ParentID moves the node under a new folder; MoveToRoot moves it to the
	// tree root. Setting both is a caller bug and ParentID wins.
	ParentID   *string
	MoveToRoot bool
}

// UpdateNode merges the provided fields into one row and returns the updated
// node. Fields left nil are untouched. A move is validated by the cycle guard
// before the write.
func (q *Queries) UpdateNode(ctx context.Context, id string, arg UpdateNodeParams) (*models.Node, error) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if arg.Name != nil {
		add("name", *arg.Name)
	}
	if arg.Icon != nil {
		add("icon", *arg.Icon)
	}
	if arg.Size != nil {
		add("size", *arg.Size)
	}
	if arg.ParentID != nil {
		if err := q.checkMoveTarget(ctx, id, *arg.ParentID); err != nil {
			return nil, err
		}
		add("parent_id", *arg.ParentID)
	} else if arg.MoveToRoot {
		add("parent_id", nil)
	}

	if len(sets) == 0 {
		return q.GetNodeByID(ctx, id)
	}

	add("date", time.Now())

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE nodes SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), nodeColumns,
	)

	node, err := scanNode(q.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrParentMissing
		}
		return nil, err
	}

	return node, nil
}

// DeleteNode removes exactly one row. Cascading over a subtree is the
// responsibility of DeleteSubtree.
func (q *Queries) DeleteNode(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	return err
}

// checkMoveTarget rejects a reparent that would make the node its own
// ancestor. The walk starts at the target and follows parent pointers upward;
// hitting the moved node means the target sits inside its subtree.
func (q *Queries) checkMoveTarget(ctx context.Context, nodeID, targetID string) error {
	if nodeID == targetID {
		return ErrCycleDetected
	}

	current := targetID
	for depth := 0; depth < maxAncestorDepth; depth++ {
		var parentID *string
		err := q.db.QueryRow(ctx, `SELECT parent_id FROM nodes WHERE id = $1`, current).Scan(&parentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				if current == targetID {
					return ErrParentMissing
				}
				// Dangling ancestor chain; the target itself exists, allow it.
				return nil
			}
			return err
		}
		if parentID == nil {
			return nil
		}
		if *parentID == nodeID {
			return ErrCycleDetected
		}
		current = *parentID
	}

	return fmt.Errorf("ancestor chain deeper than %d levels", maxAncestorDepth)
}

// IsDescendantOf reports whether potentialChild lives inside the subtree
// rooted at nodeID (a node counts as its own descendant).
func (q *Queries) IsDescendantOf(ctx context.Context, nodeID, potentialChild string) (bool, error) {
	if nodeID == potentialChild {
		return true, nil
	}

	query := `
		WITH RECURSIVE node_children AS (
			SELECT id FROM nodes WHERE id = $1

			UNION ALL

			SELECT n.id
			FROM nodes n
			JOIN node_children nc ON n.parent_id = nc.id
		)
		SELECT EXISTS (
			SELECT 1
			FROM node_children
			WHERE id = $2
		);
	`
	var isDescendant bool
	err := q.db.QueryRow(ctx, query, nodeID, potentialChild).Scan(&isDescendant)
	return isDescendant, err
}
