package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateSKU is returned when a create or update collides with an
// existing product's SKU.
var ErrDuplicateSKU = errors.New("a product with this sku already exists")

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Product is a stored product record. Price travels as a decimal string to
// avoid float rounding on a NUMERIC(10,2) column.
type Product struct {
	ID          int64  `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Active      bool   `json:"active"`
}

// ProductInput carries the writable fields of a product.
type ProductInput struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Active      bool   `json:"active"`
}

// Validate normalizes the input and reports the first violation.
// SKUs are stored lowercase; price must be a plain non-negative decimal.
func (p *ProductInput) Validate() error {
	p.SKU = strings.ToLower(strings.TrimSpace(p.SKU))
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Price = strings.TrimSpace(p.Price)

	if p.SKU == "" {
		return ValidationError("sku is required")
	}
	if p.Name == "" {
		return ValidationError("name is required")
	}
	return validatePrice(p.Price)
}

// validatePrice accepts only plain decimal digits with an optional fraction,
// bounded to what a NUMERIC(10,2) column can hold. Float forms the database
// rejects (Inf, NaN, hex, exponents) must fail here: a bad price has to stay
// a row-level error instead of failing the whole upsert statement its batch
// rides in.
func validatePrice(s string) error {
	digits, neg := strings.CutPrefix(s, "-")
	intPart, fracPart, _ := strings.Cut(digits, ".")
	if len(intPart)+len(fracPart) == 0 || !isDigits(intPart) || !isDigits(fracPart) {
		return ValidationError(fmt.Sprintf("invalid price %q", s))
	}
	if neg {
		return ValidationError(fmt.Sprintf("price must be non-negative, got %s", s))
	}
	if len(strings.TrimLeft(intPart, "0")) > 8 {
		return ValidationError(fmt.Sprintf("price %s exceeds the maximum of 99999999.99", s))
	}
	return nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

const productColumns = `id, sku, name, description, price::text, active`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Active)
	return p, err
}

// CreateProduct inserts a new product and returns the stored record.
func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, description, price, active)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING `+productColumns,
		in.SKU, in.Name, in.Description, in.Price, in.Active,
	)
	p, err := scanProduct(row)
	if isUniqueViolation(err) {
		return Product{}, ErrDuplicateSKU
	}
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// GetProduct fetches one product by ID.
func (s *Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// UpdateProduct replaces the writable fields of a product.
func (s *Store) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET sku = $2, name = $3, description = $4, price = $5::numeric, active = $6
		WHERE id = $1
		RETURNING `+productColumns,
		id, in.SKU, in.Name, in.Description, in.Price, in.Active,
	)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return Product{}, ErrDuplicateSKU
	}
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// DeleteProduct removes a product by ID.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkDeleteProducts removes the given IDs and returns how many were deleted.
func (s *Store) BulkDeleteProducts(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk delete products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Items    []Product `json:"items"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// ListProducts returns a page of products, optionally filtered by a
// case-insensitive search over sku and name.
func (s *Store) ListProducts(ctx context.Context, page, pageSize int, search string) (ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	where := ""
	args := []any{}
	if search != "" {
		where = `WHERE sku ILIKE $1 OR name ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	result := ProductPage{Items: []Product{}, Page: page, PageSize: pageSize}

	countQuery := `SELECT COUNT(*) FROM products ` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return ProductPage{}, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	listQuery := fmt.Sprintf(
		`SELECT %s FROM products %s ORDER BY id LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, pageSize, offset)

	rows, err := s.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return ProductPage{}, fmt.Errorf("scan product: %w", err)
		}
		result.Items = append(result.Items, p)
	}
	if err := rows.Err(); err != nil {
		return ProductPage{}, fmt.Errorf("list products rows: %w", err)
	}

	return result, nil
}

// AllProducts streams every product ordered by SKU, for export.
func (s *Store) AllProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("all products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpsertProducts inserts a batch of validated rows, updating existing rows on
// SKU conflict. Callers must have validated every input; the batch is applied
// in a single statement so a mid-batch storage failure applies none of it.
func (s *Store) UpsertProducts(ctx context.Context, batch []ProductInput) error {
	if len(batch) == 0 {
		return nil
	}

	// Postgres rejects ON CONFLICT updates that touch the same row twice in
	// one statement, so collapse duplicate SKUs keeping the last occurrence.
	seen := make(map[string]int, len(batch))
	deduped := batch[:0:0]
	for _, p := range batch {
		if idx, ok := seen[p.SKU]; ok {
			deduped[idx] = p
			continue
		}
		seen[p.SKU] = len(deduped)
		deduped = append(deduped, p)
	}
	batch = deduped

	var sb strings.Builder
	sb.WriteString(`INSERT INTO products (sku, name, description, price, active) VALUES `)
	args := make([]any, 0, len(batch)*5)
	for i, p := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d::numeric, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, p.SKU, p.Name, p.Description, p.Price, p.Active)
	}
	sb.WriteString(` ON CONFLICT (sku) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		price = EXCLUDED.price,
		active = EXCLUDED.active`)

	if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}
	return nil
}
