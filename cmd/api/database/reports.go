package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"
)

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

/* Returns the ledger of the user, newest first, joined with whatever book data
still resolves. Deleted books come back as NULL columns. */
func (store *Store) ListBorrowsByUser(ctx context.Context, userID uuid.UUID) ([]book.HistoryEntry, error) {
	sqlStatement := `
	SELECT r.id, r.book_id, b.title, b.author, b.category,
		r.borrowed_at, r.due_date, r.returned_at, r.fine
	FROM borrow_records r
	LEFT JOIN books b ON b.id = r.book_id
	WHERE r.user_id = $1
	ORDER BY r.created_at DESC;`

	rows, err := store.db.QueryContext(ctx, sqlStatement, userID)
	if err != nil {
		return nil, fmt.Errorf("listing borrows by user from db: %w", err)
	}
	defer rows.Close()

	entries := []book.HistoryEntry{}
	for rows.Next() {
		var entry book.HistoryEntry
		var title, author, category sql.NullString
		var returnedAt sql.NullTime

		err = rows.Scan(&entry.ID, &entry.BookID, &title, &author, &category,
			&entry.BorrowedAt, &entry.DueDate, &returnedAt, &entry.Fine)
		if err != nil {
			return nil, fmt.Errorf("listing borrows by user from db: %w", err)
		}

		entry.BookTitle = nullableString(title)
		entry.BookAuthor = nullableString(author)
		entry.BookCategory = nullableString(category)
		entry.ReturnedAt = nullableTime(returnedAt)
		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing borrows by user from db: %w", err)
	}

	return entries, nil
}

/* Returns the most recently created ledger records joined with book and user
data. Dangling references come back as NULL columns; the service decides what
to drop. */
func (store *Store) ListRecentBorrows(ctx context.Context, limit int) ([]book.RecentBorrowing, error) {
	sqlStatement := `
	SELECT r.id, r.book_id, b.title, b.author, r.user_id, u.name, u.email,
		r.borrowed_at, r.due_date, r.returned_at
	FROM borrow_records r
	LEFT JOIN books b ON b.id = r.book_id
	LEFT JOIN users u ON u.id = r.user_id
	ORDER BY r.created_at DESC
	LIMIT $1;`

	rows, err := store.db.QueryContext(ctx, sqlStatement, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent borrows from db: %w", err)
	}
	defer rows.Close()

	borrowings := []book.RecentBorrowing{}
	for rows.Next() {
		var b book.RecentBorrowing
		var title, author, name, email sql.NullString
		var returnedAt sql.NullTime

		err = rows.Scan(&b.ID, &b.BookID, &title, &author, &b.UserID, &name, &email,
			&b.BorrowedAt, &b.DueDate, &returnedAt)
		if err != nil {
			return nil, fmt.Errorf("listing recent borrows from db: %w", err)
		}

		b.BookTitle = nullableString(title)
		b.BookAuthor = nullableString(author)
		b.UserName = nullableString(name)
		b.UserEmail = nullableString(email)
		b.ReturnedAt = nullableTime(returnedAt)
		borrowings = append(borrowings, b)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing recent borrows from db: %w", err)
	}

	return borrowings, nil
}

func (store *Store) countRow(ctx context.Context, action, sqlStatement string, args ...any) (int, error) {
	var count int
	err := store.db.QueryRowContext(ctx, sqlStatement, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s from db: %w", action, err)
	}
	return count, nil
}

func (store *Store) CountAvailableBooks(ctx context.Context) (int, error) {
	return store.countRow(ctx, "counting available books",
		`SELECT COUNT(*) FROM books WHERE available_copies > 0;`)
}

func (store *Store) CountOpenBorrows(ctx context.Context) (int, error) {
	return store.countRow(ctx, "counting open borrows",
		`SELECT COUNT(*) FROM borrow_records WHERE returned_at IS NULL;`)
}

func (store *Store) CountOverdueBorrows(ctx context.Context, now time.Time) (int, error) {
	return store.countRow(ctx, "counting overdue borrows",
		`SELECT COUNT(*) FROM borrow_records WHERE returned_at IS NULL AND due_date < $1;`, now)
}

func (store *Store) CountUsers(ctx context.Context) (int, error) {
	return store.countRow(ctx, "counting users", `SELECT COUNT(*) FROM users;`)
}

func (store *Store) CreateUser(ctx context.Context, userEntry book.User) (book.User, error) {
	sqlStatement := `
	INSERT INTO users (id, name, email, role, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, name, email, role, created_at;`
	createdRow := store.db.QueryRowContext(ctx, sqlStatement, userEntry.ID, userEntry.Name,
		userEntry.Email, userEntry.Role, userEntry.CreatedAt)

	var userToReturn book.User
	err := createdRow.Scan(&userToReturn.ID, &userToReturn.Name, &userToReturn.Email,
		&userToReturn.Role, &userToReturn.CreatedAt)
	if err != nil {
		return book.User{}, fmt.Errorf("storing user on db: %w", err)
	}

	return userToReturn, nil
}

func (store *Store) GetUserByID(ctx context.Context, id uuid.UUID) (book.User, error) {
	sqlStatement := `SELECT id, name, email, role, created_at FROM users WHERE id = $1;`
	foundRow := store.db.QueryRowContext(ctx, sqlStatement, id)

	var userToReturn book.User
	err := foundRow.Scan(&userToReturn.ID, &userToReturn.Name, &userToReturn.Email,
		&userToReturn.Role, &userToReturn.CreatedAt)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return book.User{}, fmt.Errorf("searching user by ID: %w", book.ErrResponseUserNotFound)
		default:
			return book.User{}, fmt.Errorf("searching user by ID: %w", err)
		}
	}

	return userToReturn, nil
}
