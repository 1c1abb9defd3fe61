package library

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"folderexport/internal/services"
)

// Catalog is an immutable in-memory Taxonomy.
type Catalog struct {
	folders  map[int64]FolderNode
	children map[int64][]int64
	items    []MediaItem
}

// NewCatalog indexes folders and items. Folder ItemCount values are derived
// from item membership; duplicate folder IDs are rejected.
func NewCatalog(folders []FolderNode, items []MediaItem) (*Catalog, error) {
	c := &Catalog{
		folders:  make(map[int64]FolderNode, len(folders)),
		children: make(map[int64][]int64),
		items:    make([]MediaItem, len(items)),
	}
	for _, folder := range folders {
		if folder.ID <= 0 {
			return nil, services.Wrap(services.ErrValidation, "catalog", "index folders", fmt.Sprintf("folder %q has non-positive id %d", folder.Name, folder.ID), nil)
		}
		if _, dup := c.folders[folder.ID]; dup {
			return nil, services.Wrap(services.ErrValidation, "catalog", "index folders", fmt.Sprintf("duplicate folder id %d", folder.ID), nil)
		}
		folder.ItemCount = 0
		c.folders[folder.ID] = folder
	}
	for _, folder := range c.folders {
		if folder.ParentID != 0 {
			c.children[folder.ParentID] = append(c.children[folder.ParentID], folder.ID)
		}
	}
	for parent := range c.children {
		ids := c.children[parent]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	copy(c.items, items)
	for _, item := range c.items {
		if folder, ok := c.folders[item.FolderID]; ok {
			folder.ItemCount++
			c.folders[item.FolderID] = folder
		}
	}
	return c, nil
}

// Folder implements Taxonomy.
func (c *Catalog) Folder(_ context.Context, id int64) (FolderNode, error) {
	folder, ok := c.folders[id]
	if !ok {
		return FolderNode{}, services.Wrap(services.ErrNotFound, "catalog", "folder", fmt.Sprintf("folder %d", id), nil)
	}
	return folder, nil
}

// Ancestors implements Taxonomy. The walk stops after len(folders) steps, so a
// parent cycle yields a truncated chain instead of looping.
func (c *Catalog) Ancestors(_ context.Context, id int64) ([]FolderNode, error) {
	folder, ok := c.folders[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "ancestors", fmt.Sprintf("folder %d", id), nil)
	}
	var chain []FolderNode
	seen := map[int64]struct{}{id: {}}
	parent := folder.ParentID
	for steps := 0; parent != 0 && steps < len(c.folders); steps++ {
		if _, loop := seen[parent]; loop {
			break
		}
		seen[parent] = struct{}{}
		node, ok := c.folders[parent]
		if !ok {
			break
		}
		chain = append(chain, node)
		parent = node.ParentID
	}
	return chain, nil
}

// Descendants implements Taxonomy, breadth-first in ascending ID order per level.
func (c *Catalog) Descendants(_ context.Context, id int64) ([]int64, error) {
	if _, ok := c.folders[id]; !ok {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "descendants", fmt.Sprintf("folder %d", id), nil)
	}
	var out []int64
	seen := map[int64]struct{}{id: {}}
	queue := append([]int64(nil), c.children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, dup := seen[next]; dup {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
		queue = append(queue, c.children[next]...)
	}
	return out, nil
}

// Items implements Taxonomy.
func (c *Catalog) Items(_ context.Context, folderIDs []int64) ([]MediaItem, error) {
	wanted := make(map[int64]struct{}, len(folderIDs))
	for _, id := range folderIDs {
		wanted[id] = struct{}{}
	}
	var out []MediaItem
	for _, item := range c.items {
		if _, ok := wanted[item.FolderID]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// Folders implements Taxonomy.
func (c *Catalog) Folders(_ context.Context) ([]FolderNode, error) {
	out := make([]FolderNode, 0, len(c.folders))
	for _, folder := range c.folders {
		out = append(out, folder)
	}
	sort.Slice(out, func(i, j int) bool {
		left, right := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if left != right {
			return left < right
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DisplayPath joins the unsanitized folder names root-first with " / ".
func DisplayPath(ctx context.Context, taxonomy Taxonomy, folder FolderNode) string {
	ancestors, err := taxonomy.Ancestors(ctx, folder.ID)
	if err != nil {
		return folder.Name
	}
	parts := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		parts = append(parts, ancestors[i].Name)
	}
	parts = append(parts, folder.Name)
	return strings.Join(parts, " / ")
}
