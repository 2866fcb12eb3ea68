package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"

	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

/* Connects to the database through a connection string and returns a pointer to a valid DB object (*sql.DB). */
func ConnectDb(connStr string) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, opening: %w", err)
	}

	err = sqlDB.Ping()
	if err != nil {
		return nil, fmt.Errorf("connecting to db, pinging: %w", err)
	}

	return sqlDB, nil
}

func MigrationUp(store *Store, path string) error {
	driver, err := postgres.WithInstance(store.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	err = m.Up()
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

const bookColumns = `id, title, author, category, isbn, description, cover_path,
	total_copies, available_copies, status, borrower_id, borrowed_at, due_date,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (book.Book, error) {
	var b book.Book
	var borrowerID sql.NullString
	var borrowedAt, dueDate sql.NullTime

	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Category, &b.ISBN, &b.Description,
		&b.CoverPath, &b.TotalCopies, &b.AvailableCopies, &b.Status,
		&borrowerID, &borrowedAt, &dueDate, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return book.Book{}, err
	}

	if borrowerID.Valid {
		id, err := uuid.Parse(borrowerID.String)
		if err != nil {
			return book.Book{}, fmt.Errorf("parsing borrower id: %w", err)
		}
		b.BorrowerID = &id
	}
	if borrowedAt.Valid {
		t := borrowedAt.Time
		b.BorrowedAt = &t
	}
	if dueDate.Valid {
		t := dueDate.Time
		b.DueDate = &t
	}

	return b, nil
}

/* Stores the book into the database, checks and returns it if succeed. */
func (store *Store) CreateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	sqlStatement := `
	INSERT INTO books (id, title, author, category, isbn, description, cover_path,
		total_copies, available_copies, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING ` + bookColumns
	createdRow := store.db.QueryRowContext(ctx, sqlStatement, bookEntry.ID, bookEntry.Title,
		bookEntry.Author, bookEntry.Category, bookEntry.ISBN, bookEntry.Description,
		bookEntry.CoverPath, bookEntry.TotalCopies, bookEntry.AvailableCopies,
		bookEntry.Status, bookEntry.CreatedAt, bookEntry.UpdatedAt)

	bookToReturn, err := scanBook(createdRow)
	if err != nil {
		return book.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	return bookToReturn, nil
}

/* Searches a book in database based on ID and returns it if succeed. */
func (store *Store) GetBookByID(ctx context.Context, id uuid.UUID) (book.Book, error) {
	sqlStatement := `SELECT ` + bookColumns + ` FROM books WHERE id = $1;`
	foundRow := store.db.QueryRowContext(ctx, sqlStatement, id)

	bookToReturn, err := scanBook(foundRow)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return book.Book{}, fmt.Errorf("searching by ID: %w", book.ErrResponseBookNotFound)
		default:
			return book.Book{}, fmt.Errorf("searching by ID: %w", err)
		}
	}

	return bookToReturn, nil
}

func (store *Store) UpdateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	sqlStatement := `
	UPDATE books
	SET title = $2, author = $3, category = $4, isbn = $5, description = $6,
		cover_path = $7, total_copies = $8, available_copies = $9, updated_at = $10
	WHERE id = $1
	RETURNING ` + bookColumns
	updatedRow := store.db.QueryRowContext(ctx, sqlStatement, bookEntry.ID, bookEntry.Title,
		bookEntry.Author, bookEntry.Category, bookEntry.ISBN, bookEntry.Description,
		bookEntry.CoverPath, bookEntry.TotalCopies, bookEntry.AvailableCopies,
		bookEntry.UpdatedAt)

	bookToReturn, err := scanBook(updatedRow)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return book.Book{}, fmt.Errorf("updating on db: %w", book.ErrResponseBookNotFound)
		default:
			return book.Book{}, fmt.Errorf("updating on db: %w", err)
		}
	}

	return bookToReturn, nil
}

/* Removes the book row only. Ledger rows referencing it are kept. */
func (store *Store) DeleteBook(ctx context.Context, id uuid.UUID) (book.Book, error) {
	sqlStatement := `
	DELETE FROM books
	WHERE id = $1
	RETURNING ` + bookColumns
	deletedRow := store.db.QueryRowContext(ctx, sqlStatement, id)

	bookToReturn, err := scanBook(deletedRow)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return book.Book{}, fmt.Errorf("deleting on db: %w", book.ErrResponseBookNotFound)
		default:
			return book.Book{}, fmt.Errorf("deleting on db: %w", err)
		}
	}

	return bookToReturn, nil
}

/* Builds the WHERE clause shared by ListBooks and CountBooks. The search term
matches title, author or category as a case-insensitive substring; the exact
filters narrow that result further. */
func bookFilterClause(filters book.ListBooksFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Search != "" {
		pattern := fmt.Sprint("%", filters.Search, "%")
		args = append(args, pattern)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d OR category ILIKE $%d)", n, n, n))
	}
	if filters.Category != "" {
		args = append(args, filters.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filters.Author != "" {
		args = append(args, filters.Author)
		conditions = append(conditions, fmt.Sprintf("author = $%d", len(args)))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

/* Returns filtered content of database in a list of books. */
func (store *Store) ListBooks(ctx context.Context, filters book.ListBooksFilters, page, pageSize int) ([]book.Book, error) {
	where, args := bookFilterClause(filters)
	offset := (page - 1) * pageSize
	sqlStatement := fmt.Sprintf(`SELECT %s FROM books%s ORDER BY created_at DESC LIMIT %d OFFSET %d;`,
		bookColumns, where, pageSize, offset)

	rows, err := store.db.QueryContext(ctx, sqlStatement, args...)
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	defer rows.Close()

	booksList := []book.Book{}
	for rows.Next() {
		bookToReturn, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("listing books from db: %w", err)
		}
		booksList = append(booksList, bookToReturn)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}

	return booksList, nil
}

/* Counts how many rows in db fit the specified filter parameters. */
func (store *Store) CountBooks(ctx context.Context, filters book.ListBooksFilters) (int, error) {
	where, args := bookFilterClause(filters)
	sqlStatement := `SELECT COUNT(*) FROM books` + where + `;`

	row := store.db.QueryRowContext(ctx, sqlStatement, args...)
	var count int
	err := row.Scan(&count)
	if err != nil {
		return count, fmt.Errorf("counting books from db: %w", err)
	}

	return count, nil
}

/* Takes one copy for the borrower and appends the ledger record, both inside a
single transaction. The copy is taken with a conditional update, so a
concurrent request racing for the last copy loses cleanly. */
func (store *Store) BorrowBookCopy(ctx context.Context, record book.BorrowRecord) (book.Book, error) {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return book.Book{}, fmt.Errorf("borrowing on db: %w", err)
	}
	defer tx.Rollback()

	sqlStatement := `
	UPDATE books
	SET status = $2, borrower_id = $3, borrowed_at = $4, due_date = $5,
		available_copies = available_copies - 1, updated_at = $4
	WHERE id = $1
		AND status <> $2
		AND available_copies > 0
		AND (borrower_id IS NULL OR borrower_id <> $3)
	RETURNING ` + bookColumns
	updatedRow := tx.QueryRowContext(ctx, sqlStatement, record.BookID, book.StatusBorrowed,
		record.UserID, record.BorrowedAt, record.DueDate)

	borrowedBook, err := scanBook(updatedRow)
	if err != nil {
		if err == sql.ErrNoRows {
			return book.Book{}, store.classifyBorrowMiss(ctx, record.BookID)
		}
		return book.Book{}, fmt.Errorf("borrowing on db: %w", err)
	}

	sqlStatement = `
	INSERT INTO borrow_records (id, user_id, book_id, borrowed_at, due_date, fine, created_at)
	VALUES ($1, $2, $3, $4, $5, 0, $6);`
	_, err = tx.ExecContext(ctx, sqlStatement, record.ID, record.UserID, record.BookID,
		record.BorrowedAt, record.DueDate, record.CreatedAt)
	if err != nil {
		return book.Book{}, fmt.Errorf("storing borrow record on db: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return book.Book{}, fmt.Errorf("borrowing on db: %w", err)
	}

	return borrowedBook, nil
}

/* Tells a missing book apart from one that lost the conditional update. */
func (store *Store) classifyBorrowMiss(ctx context.Context, bookID uuid.UUID) error {
	var exists bool
	err := store.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1);`, bookID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("borrowing on db: %w", err)
	}
	if !exists {
		return fmt.Errorf("borrowing on db: %w", book.ErrResponseBookNotFound)
	}
	return fmt.Errorf("borrowing on db: %w", book.ErrResponseBookUnavailable)
}

/* Releases the copy and closes the open ledger record of (book, user) with the
fine, inside a single transaction. A missing open record is logged but does not
block the book-side reset. */
func (store *Store) ReturnBookCopy(ctx context.Context, bookID, userID uuid.UUID, returnedAt time.Time, fine int) (book.Book, error) {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return book.Book{}, fmt.Errorf("returning on db: %w", err)
	}
	defer tx.Rollback()

	sqlStatement := `
	UPDATE books
	SET status = $2, borrower_id = NULL, borrowed_at = NULL, due_date = NULL,
		available_copies = LEAST(available_copies + 1, total_copies), updated_at = $3
	WHERE id = $1
	RETURNING ` + bookColumns
	updatedRow := tx.QueryRowContext(ctx, sqlStatement, bookID, book.StatusAvailable, returnedAt)

	returnedBook, err := scanBook(updatedRow)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return book.Book{}, fmt.Errorf("returning on db: %w", book.ErrResponseBookNotFound)
		default:
			return book.Book{}, fmt.Errorf("returning on db: %w", err)
		}
	}

	sqlStatement = `
	UPDATE borrow_records
	SET returned_at = $3, fine = $4
	WHERE id = (
		SELECT id FROM borrow_records
		WHERE book_id = $1 AND user_id = $2 AND returned_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	);`
	result, err := tx.ExecContext(ctx, sqlStatement, bookID, userID, returnedAt, fine)
	if err != nil {
		return book.Book{}, fmt.Errorf("closing borrow record on db: %w", err)
	}
	if closed, err := result.RowsAffected(); err == nil && closed == 0 {
		log.Printf("returning on db: no open borrow record for book %s and user %s", bookID, userID)
	}

	if err := tx.Commit(); err != nil {
		return book.Book{}, fmt.Errorf("returning on db: %w", err)
	}

	return returnedBook, nil
}
