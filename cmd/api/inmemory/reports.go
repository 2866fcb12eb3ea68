package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"
)

func (store *InMemoryStore) ListBorrowsByUser(ctx context.Context, userID uuid.UUID) ([]book.HistoryEntry, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("borrow", "user_id", userID.String())
	if err != nil {
		return nil, fmt.Errorf("listing borrows by user from db: %w", err)
	}

	records := []AdaptedBorrow{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, obj.(AdaptedBorrow))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	entries := []book.HistoryEntry{}
	for _, r := range records {
		entry := book.HistoryEntry{
			ID:         uuid.MustParse(r.ID),
			BookID:     uuid.MustParse(r.BookID),
			BorrowedAt: r.BorrowedAt,
			DueDate:    r.DueDate,
			ReturnedAt: r.ReturnedAt,
			Fine:       r.Fine,
		}

		raw, err := txn.First("book", "id", r.BookID)
		if err != nil {
			return nil, fmt.Errorf("listing borrows by user from db: %w", err)
		}
		if raw != nil {
			b := raw.(AdaptedBook)
			entry.BookTitle = &b.Title
			entry.BookAuthor = &b.Author
			entry.BookCategory = &b.Category
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (store *InMemoryStore) ListRecentBorrows(ctx context.Context, limit int) ([]book.RecentBorrowing, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("borrow", "id")
	if err != nil {
		return nil, fmt.Errorf("listing recent borrows from db: %w", err)
	}

	records := []AdaptedBorrow{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, obj.(AdaptedBorrow))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}

	borrowings := []book.RecentBorrowing{}
	for _, r := range records {
		b := book.RecentBorrowing{
			ID:         uuid.MustParse(r.ID),
			BookID:     uuid.MustParse(r.BookID),
			UserID:     uuid.MustParse(r.UserID),
			BorrowedAt: r.BorrowedAt,
			DueDate:    r.DueDate,
			ReturnedAt: r.ReturnedAt,
		}

		rawBook, err := txn.First("book", "id", r.BookID)
		if err != nil {
			return nil, fmt.Errorf("listing recent borrows from db: %w", err)
		}
		if rawBook != nil {
			referenced := rawBook.(AdaptedBook)
			b.BookTitle = &referenced.Title
			b.BookAuthor = &referenced.Author
		}

		rawUser, err := txn.First("user", "id", r.UserID)
		if err != nil {
			return nil, fmt.Errorf("listing recent borrows from db: %w", err)
		}
		if rawUser != nil {
			referenced := rawUser.(AdaptedUser)
			b.UserName = &referenced.Name
			b.UserEmail = &referenced.Email
		}

		borrowings = append(borrowings, b)
	}

	return borrowings, nil
}

func (store *InMemoryStore) CountAvailableBooks(ctx context.Context) (int, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("book", "id")
	if err != nil {
		return 0, fmt.Errorf("counting available books from db: %w", err)
	}

	count := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if obj.(AdaptedBook).AvailableCopies > 0 {
			count++
		}
	}

	return count, nil
}

func (store *InMemoryStore) CountOpenBorrows(ctx context.Context) (int, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("borrow", "id")
	if err != nil {
		return 0, fmt.Errorf("counting open borrows from db: %w", err)
	}

	count := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if obj.(AdaptedBorrow).ReturnedAt == nil {
			count++
		}
	}

	return count, nil
}

func (store *InMemoryStore) CountOverdueBorrows(ctx context.Context, now time.Time) (int, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("borrow", "id")
	if err != nil {
		return 0, fmt.Errorf("counting overdue borrows from db: %w", err)
	}

	count := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		r := obj.(AdaptedBorrow)
		if r.ReturnedAt == nil && r.DueDate.Before(now) {
			count++
		}
	}

	return count, nil
}

func (store *InMemoryStore) CountUsers(ctx context.Context) (int, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("user", "id")
	if err != nil {
		return 0, fmt.Errorf("counting users from db: %w", err)
	}

	count := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		count++
	}

	return count, nil
}

func (store *InMemoryStore) CreateUser(ctx context.Context, userEntry book.User) (book.User, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert("user", adaptUserIdToString(userEntry)); err != nil {
		return book.User{}, fmt.Errorf("storing user on db: %w", err)
	}

	txn.Commit()
	return userEntry, nil
}

func (store *InMemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (book.User, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First("user", "id", id.String())
	if err != nil {
		return book.User{}, fmt.Errorf("searching user by ID: %w", err)
	}
	if raw == nil {
		return book.User{}, fmt.Errorf("searching user by ID: %w", book.ErrResponseUserNotFound)
	}

	return adaptUserIdToUUID(raw.(AdaptedUser)), nil
}
