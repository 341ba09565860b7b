package mysql

const insertProductSQL = `
INSERT INTO products (id, name, description, price)
VALUES (?, ?, ?, ?)
`

const getProductSQL = `
SELECT id, name, description, price, created_at
FROM products
WHERE id = ?
`

const listProductsSQL = `
SELECT id, name, description, price, created_at
FROM products
ORDER BY created_at DESC, id DESC
`

const updateProductSQL = `
UPDATE products
SET name = ?, description = ?, price = ?
WHERE id = ?
`

const deleteProductSQL = `DELETE FROM products WHERE id = ?`

// Note: `text` is reserved; keep it quoted everywhere.
const insertReviewSQL = "INSERT INTO reviews\n" +
	"  (id, product_id, author, `text`, status)\n" +
	"VALUES (?, ?, ?, ?, ?)\n"

const getReviewSQL = "SELECT id, product_id, author, `text`, status, moderation_reason, created_at, updated_at\n" +
	"FROM reviews\nWHERE id = ?\n"

// setReviewStatusSQL is the worker's single atomic write: status, reason and
// updated_at change together, nothing else does.
const setReviewStatusSQL = `
UPDATE reviews
SET status = ?, moderation_reason = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

// resetReviewTextSQL replaces the text and re-enters pending, clearing any
// previous rejection reason.
const resetReviewTextSQL = "UPDATE reviews\n" +
	"SET `text` = ?, status = 'pending', moderation_reason = NULL, updated_at = CURRENT_TIMESTAMP\n" +
	"WHERE id = ?\n"

const deleteReviewSQL = `DELETE FROM reviews WHERE id = ?`

const listReviewsPrefix = "SELECT id, product_id, author, `text`, status, moderation_reason, created_at, updated_at\nFROM reviews\n"

const listReviewsSuffix = "ORDER BY created_at DESC, id DESC\nLIMIT ?\n"
