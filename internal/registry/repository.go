package registry

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
)

// Repository is the generic paged CRUD service behind every registry entity.
type Repository[T any, PT Ptr[T]] struct {
	db    *gorm.DB
	hooks Hooks[T, PT]
}

func NewRepository[T any, PT Ptr[T]](db *gorm.DB, hooks Hooks[T, PT]) *Repository[T, PT] {
	return &Repository[T, PT]{db: db, hooks: hooks}
}

func (r *Repository[T, PT]) DB() *gorm.DB { return r.db }

// List returns active rows matching the search term, paged and sorted.
func (r *Repository[T, PT]) List(req PageRequest) (PageResponse[T], error) {
	var zero T
	q := r.db.Model(&zero).Where("ativo = ?", true)
	if term := strings.TrimSpace(req.Search); term != "" && r.hooks.SearchFilter != nil {
		q = r.hooks.SearchFilter(q, term)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return PageResponse[T]{}, apperr.Persistence(err)
	}
	order := r.orderClause(req.Sort)
	var items []T
	offset := (req.Page - 1) * req.Limit
	if err := q.Order(order).Limit(req.Limit).Offset(offset).Find(&items).Error; err != nil {
		return PageResponse[T]{}, apperr.Persistence(err)
	}
	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	if totalPages < 1 {
		totalPages = 1
	}
	return PageResponse[T]{Items: items, Total: total, Page: req.Page, Limit: req.Limit, TotalPages: totalPages}, nil
}

func (r *Repository[T, PT]) orderClause(sort string) string {
	if len(r.hooks.SortColumns) == 0 {
		return "id desc"
	}
	def := r.hooks.SortColumns[0]
	if sort == "" {
		return def
	}
	col := sort
	desc := strings.HasPrefix(sort, "-")
	if desc {
		col = sort[1:]
	}
	for _, allowed := range r.hooks.SortColumns {
		if strings.Fields(allowed)[0] == col {
			if desc {
				return col + " desc"
			}
			return col
		}
	}
	return def
}

// Get returns an active entity by ID.
func (r *Repository[T, PT]) Get(id uint) (PT, error) {
	var e T
	err := r.db.Where("ativo = ?", true).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundID(r.hooks.Resource, id)
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return PT(&e), nil
}

// Create normalizes, validates and persists a new entity, rejecting a
// duplicate natural key among active rows.
func (r *Repository[T, PT]) Create(e PT) error {
	r.prepare(e)
	if err := r.validate(e); err != nil {
		return err
	}
	if err := r.checkDuplicate(e, 0); err != nil {
		return err
	}
	e.SetActive(true)
	if err := r.db.Create(e).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// Update persists changes to an existing entity, rejecting a duplicate
// natural key excluding the entity itself.
func (r *Repository[T, PT]) Update(e PT) error {
	if e.GetID() == 0 {
		return apperr.Validation("id obrigatório")
	}
	r.prepare(e)
	if err := r.validate(e); err != nil {
		return err
	}
	if err := r.checkDuplicate(e, e.GetID()); err != nil {
		return err
	}
	if err := r.db.Save(e).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// Delete soft-deletes the entity unless a manifest still references it.
func (r *Repository[T, PT]) Delete(id uint) error {
	e, err := r.Get(id)
	if err != nil {
		return err
	}
	if r.hooks.DeleteGuard != nil {
		if err := r.hooks.DeleteGuard(r.db, e); err != nil {
			return err
		}
	}
	e.SetActive(false)
	if err := r.db.Save(e).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (r *Repository[T, PT]) prepare(e PT) {
	if r.hooks.Normalize != nil {
		r.hooks.Normalize(e)
	}
}

func (r *Repository[T, PT]) validate(e PT) error {
	if r.hooks.Validate != nil {
		return r.hooks.Validate(e)
	}
	return nil
}

func (r *Repository[T, PT]) checkDuplicate(e PT, excludeID uint) error {
	if r.hooks.NaturalKey == nil {
		return nil
	}
	column, value := r.hooks.NaturalKey(e)
	if value == "" {
		return apperr.Validation(column + " obrigatório")
	}
	var zero T
	q := r.db.Model(&zero).Where(fmt.Sprintf("%s = ? AND ativo = ?", column), value, true)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperr.Persistence(err)
	}
	if count > 0 {
		return apperr.Conflict(fmt.Sprintf("%s já cadastrado com %s %s", r.hooks.Resource, column, value))
	}
	return nil
}
