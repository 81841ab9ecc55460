package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Fixed expense categories. Consumers (pickers, validation) rely on this
// exact list; do not duplicate it at call sites.
const (
	CategoryFood           Category = "Food"
	CategoryTransportation Category = "Transportation"
	CategoryEntertainment  Category = "Entertainment"
	CategoryShopping       Category = "Shopping"
	CategoryUtilities      Category = "Utilities"
	CategoryEducation      Category = "Education"
	CategoryHealth         Category = "Health"
	CategoryOther          Category = "Other"
)

type (
	Role     string
	Period   string
	Category string

	Money struct {
		Cents int64
	}

	// Account is a login identity in the family directory. A child points at
	// its parent through ParentID; a parent lists its children by id.
	Account struct {
		ID       string
		Name     string
		Email    string
		Role     Role
		Avatar   string
		ParentID string
		Children []string
	}

	// AccountPatch carries the mutable profile fields. Nil means unchanged.
	AccountPatch struct {
		Name     *string
		Avatar   *string
		Children *[]string
	}

	Expense struct {
		ID          string
		UserID      string
		Amount      Money
		Category    Category
		Description string
		Date        time.Time
		CreatedAt   time.Time
		UpdatedAt   time.Time

		// Pending marks an optimistic local entry that has not been
		// confirmed by the store yet. Never persisted.
		Pending bool
	}

	// ExpensePatch carries the mutable expense fields; ID and UserID are
	// immutable after creation.
	ExpensePatch struct {
		Amount      *Money
		Category    *Category
		Description *string
		Date        *time.Time
	}

	Budget struct {
		ID             string
		UserID         string
		Amount         Money
		Period         Period
		CategoryLimits map[Category]Money
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPeriod   = errors.New("invalid period")
	ErrInvalidRole     = errors.New("invalid role")
	ErrEmptyUserID     = errors.New("empty user id")
	ErrEmptyDate       = errors.New("empty date")

	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrFetchFailed  = errors.New("fetch failed")
	ErrWriteFailed  = errors.New("write failed")
)

// Categories returns the fixed category list in display order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryTransportation,
		CategoryEntertainment,
		CategoryShopping,
		CategoryUtilities,
		CategoryEducation,
		CategoryHealth,
		CategoryOther,
	}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryFood, CategoryTransportation, CategoryEntertainment,
		CategoryShopping, CategoryUtilities, CategoryEducation,
		CategoryHealth, CategoryOther:
		return true
	default:
		return false
	}
}

func (p Period) Valid() bool {
	return p == Weekly || p == Monthly
}

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address. Every layer that
// touches emails goes through this so the uniqueness invariant holds.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("empty name")
	}
	if !strings.Contains(a.Email, "@") {
		return errors.New("invalid email")
	}
	if !a.Role.Valid() {
		return ErrInvalidRole
	}
	if a.Role == RoleChild && a.ParentID == "" {
		return errors.New("child account requires a parent id")
	}
	if a.Role == RoleParent && a.ParentID != "" {
		return errors.New("parent account cannot have a parent id")
	}
	return nil
}

func (e Expense) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if e.Date.IsZero() {
		return ErrEmptyDate
	}
	return nil
}

func (b Budget) Validate() error {
	if b.UserID == "" {
		return ErrEmptyUserID
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	for cat, limit := range b.CategoryLimits {
		if !cat.Valid() {
			return ErrInvalidCategory
		}
		if limit.Cents <= 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}
