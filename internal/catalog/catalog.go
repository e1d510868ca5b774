package catalog

import (
	"slices"
	"strings"

	"ventas/backend/internal/domain"
)

// Defaults are the selections a fresh draft starts with. Zero means "none".
type Defaults struct {
	CustomerID     int64 `json:"customer_id"`
	UserID         int64 `json:"user_id"`
	DocumentTypeID int64 `json:"document_type_id"`
}

// Catalog is the read-only reference data of one form session, already
// filtered to what a sale may select.
type Catalog struct {
	customers     []domain.Customer
	users         []domain.User
	documentTypes []domain.DocumentType
	accounts      []domain.TreasuryAccount
	articles      []domain.Article
	effective     *domain.User
	defaults      Defaults
}

// Build filters a raw snapshot, resolves account kinds and defaults, and
// matches the effective user by email.
func Build(snapshot domain.CatalogSnapshot, identityEmail string, overrides Defaults) *Catalog {
	c := &Catalog{
		customers: slices.Clone(snapshot.Customers),
		users:     slices.Clone(snapshot.Users),
	}

	for _, dt := range snapshot.DocumentTypes {
		if dt.Active && strings.TrimSpace(dt.Description) != "" && !dt.ReentersStock {
			c.documentTypes = append(c.documentTypes, dt)
		}
	}
	for _, account := range snapshot.Accounts {
		if strings.TrimSpace(account.Description) == "" {
			continue
		}
		account.Kind = ResolveKind(account)
		c.accounts = append(c.accounts, account)
	}
	for _, article := range snapshot.Articles {
		if article.Active {
			c.articles = append(c.articles, article)
		}
	}

	email := strings.ToLower(strings.TrimSpace(identityEmail))
	if email != "" {
		for _, u := range c.users {
			if strings.ToLower(strings.TrimSpace(u.Email)) == email {
				found := u
				c.effective = &found
				break
			}
		}
	}

	c.defaults = c.resolveDefaults(overrides)
	return c
}

func (c *Catalog) resolveDefaults(overrides Defaults) Defaults {
	var d Defaults

	if _, ok := c.Customer(overrides.CustomerID); ok {
		d.CustomerID = overrides.CustomerID
	} else if i := slices.IndexFunc(c.customers, func(x domain.Customer) bool { return x.IsDefault }); i >= 0 {
		d.CustomerID = c.customers[i].ID
	}

	if _, ok := c.User(overrides.UserID); ok {
		d.UserID = overrides.UserID
	} else if i := slices.IndexFunc(c.users, func(x domain.User) bool { return x.IsDefault }); i >= 0 {
		d.UserID = c.users[i].ID
	}

	if _, ok := c.DocumentType(overrides.DocumentTypeID); ok {
		d.DocumentTypeID = overrides.DocumentTypeID
	} else if i := slices.IndexFunc(c.documentTypes, func(x domain.DocumentType) bool { return x.IsDefault }); i >= 0 {
		d.DocumentTypeID = c.documentTypes[i].ID
	}

	return d
}

// ResolveKind returns the stored kind when valid, otherwise classifies the
// account by its description.
func ResolveKind(account domain.TreasuryAccount) domain.AccountKind {
	switch account.Kind {
	case domain.AccountKindCash, domain.AccountKindRunning, domain.AccountKindOther:
		return account.Kind
	}

	key := strings.Join(strings.Fields(strings.ToUpper(account.Description)), "")
	switch {
	case strings.Contains(key, "CUENTACORRIENTE"):
		return domain.AccountKindRunning
	case key == "CAJA" || key == "CASH" || strings.HasPrefix(key, "EFECTIVO"):
		return domain.AccountKindCash
	default:
		return domain.AccountKindOther
	}
}

func (c *Catalog) Defaults() Defaults {
	return c.defaults
}

// WalkInCustomerID is the anonymous customer that may not buy on a running account.
func (c *Catalog) WalkInCustomerID() int64 {
	return c.defaults.CustomerID
}

func (c *Catalog) EffectiveUser() (domain.User, bool) {
	if c.effective == nil {
		return domain.User{}, false
	}
	return *c.effective, true
}

// UserLocked reports whether the user selector is fixed. Only a supervisor
// may pick another operator.
func (c *Catalog) UserLocked() bool {
	return c.effective == nil || c.effective.Role != domain.RoleSupervisor
}

// ForcedUserID is the operator a non-supervisor is pinned to.
func (c *Catalog) ForcedUserID() (int64, bool) {
	if c.effective == nil || c.effective.Role == domain.RoleSupervisor {
		return 0, false
	}
	return c.effective.ID, true
}

func (c *Catalog) SelectableUsers() []domain.User {
	switch {
	case c.effective == nil:
		return []domain.User{}
	case c.effective.Role == domain.RoleSupervisor:
		return slices.Clone(c.users)
	default:
		mine := make([]domain.User, 0, 1)
		for _, u := range c.users {
			if u.Email == c.effective.Email {
				mine = append(mine, u)
			}
		}
		return mine
	}
}

func (c *Catalog) Customers() []domain.Customer         { return slices.Clone(c.customers) }
func (c *Catalog) DocumentTypes() []domain.DocumentType { return slices.Clone(c.documentTypes) }
func (c *Catalog) Accounts() []domain.TreasuryAccount   { return slices.Clone(c.accounts) }
func (c *Catalog) Articles() []domain.Article           { return slices.Clone(c.articles) }

func (c *Catalog) Customer(id int64) (domain.Customer, bool) {
	return find(c.customers, id, func(x domain.Customer) int64 { return x.ID })
}

func (c *Catalog) User(id int64) (domain.User, bool) {
	return find(c.users, id, func(x domain.User) int64 { return x.ID })
}

func (c *Catalog) DocumentType(id int64) (domain.DocumentType, bool) {
	return find(c.documentTypes, id, func(x domain.DocumentType) int64 { return x.ID })
}

func (c *Catalog) Account(id int64) (domain.TreasuryAccount, bool) {
	return find(c.accounts, id, func(x domain.TreasuryAccount) int64 { return x.ID })
}

func (c *Catalog) Article(id int64) (domain.Article, bool) {
	return find(c.articles, id, func(x domain.Article) int64 { return x.ID })
}

// Suggestions returns up to limit active articles whose description contains
// text, ignoring case. An empty query suggests nothing.
func (c *Catalog) Suggestions(text string, limit int) []domain.Article {
	if text == "" || limit < 1 {
		return nil
	}
	needle := strings.ToLower(text)
	out := make([]domain.Article, 0, limit)
	for _, a := range c.articles {
		if strings.Contains(strings.ToLower(a.Description), needle) {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func find[T any](items []T, id int64, key func(T) int64) (T, bool) {
	var zero T
	if id == 0 {
		return zero, false
	}
	for _, item := range items {
		if key(item) == id {
			return item, true
		}
	}
	return zero, false
}
