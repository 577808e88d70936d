// Package registry implements the reference-entity CRUD shared by vehicles,
// drivers, trailers, contractors, insurers, emitters and municipalities.
// Instead of the runtime reflection the previous generation of this system
// used to flip Ativo/Id fields, every entity implements Entity explicitly and
// the repository is parameterized over the entity type.
package registry

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Entity is implemented by every reference-registry model.
type Entity interface {
	GetID() uint
	IsActive() bool
	SetActive(bool)
}

// Ptr constrains PT to be a pointer to T that satisfies Entity.
type Ptr[T any] interface {
	*T
	Entity
}

// PageRequest carries pagination, search and sort parameters.
type PageRequest struct {
	Page   int
	Limit  int
	Search string
	Sort   string
}

// PageResponse is the paged list shape returned by every registry endpoint.
type PageResponse[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// PageFromQuery reads limit/page/q/sort query parameters with the same
// defaults and caps used across the API.
func PageFromQuery(c *gin.Context) PageRequest {
	req := PageRequest{Page: 1, Limit: 50}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			req.Limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			req.Page = n
		}
	}
	req.Search = c.Query("q")
	req.Sort = c.Query("sort")
	return req
}

// Hooks are the per-entity extension points supplied as plain function
// values: natural-key lookup, normalization, search filter, validation and
// the referential delete guard.
type Hooks[T any, PT Ptr[T]] struct {
	// Resource names the entity in error messages ("veículo", "condutor"...).
	Resource string
	// NaturalKey returns the column and the normalized value used for
	// duplicate detection among active rows. Normalization must already have
	// been applied when this runs.
	NaturalKey func(e PT) (column string, value string)
	// Normalize rewrites key fields into canonical form (digits-only
	// documents, uppercased UF/plates). Applied on create and update so
	// lookups never miss a duplicate.
	Normalize func(e PT)
	// Validate rejects malformed entities before any write.
	Validate func(e PT) error
	// SearchFilter applies the q= term to the list query.
	SearchFilter func(q *gorm.DB, term string) *gorm.DB
	// SortColumns whitelists sortable columns; the first entry is the default.
	SortColumns []string
	// DeleteGuard returns a conflict error while the entity is referenced by
	// any manifest.
	DeleteGuard func(tx *gorm.DB, e PT) error
}
