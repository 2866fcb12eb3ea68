package inmemory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/book"
)

// InMemoryStore implements book.Repository on hashicorp/go-memdb. It backs
// the test suites and the dev mode, where a postgres instance is not around.
type InMemoryStore struct {
	db *memdb.MemDB
}

func NewInMemoryStore() (*InMemoryStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"book": {
				Name: "book",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			"user": {
				Name: "user",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			"borrow": {
				Name: "borrow",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"user_id": {
						Name:    "user_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
					"book_user": {
						Name:   "book_user",
						Unique: false,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "BookID"},
								&memdb.StringFieldIndex{Field: "UserID"},
							},
						},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db}, nil
}

// memdb indexes on string fields, so ids are stored as their string form.
type AdaptedBook struct {
	ID              string
	Title           string
	Author          string
	Category        string
	ISBN            string
	Description     string
	CoverPath       string
	TotalCopies     int
	AvailableCopies int
	Status          string
	BorrowerID      string
	BorrowedAt      *time.Time
	DueDate         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func adaptBookIdToString(bookEntry book.Book) AdaptedBook {
	adapted := AdaptedBook{
		ID:              bookEntry.ID.String(),
		Title:           bookEntry.Title,
		Author:          bookEntry.Author,
		Category:        bookEntry.Category,
		ISBN:            bookEntry.ISBN,
		Description:     bookEntry.Description,
		CoverPath:       bookEntry.CoverPath,
		TotalCopies:     bookEntry.TotalCopies,
		AvailableCopies: bookEntry.AvailableCopies,
		Status:          bookEntry.Status,
		BorrowedAt:      bookEntry.BorrowedAt,
		DueDate:         bookEntry.DueDate,
		CreatedAt:       bookEntry.CreatedAt,
		UpdatedAt:       bookEntry.UpdatedAt,
	}
	if bookEntry.BorrowerID != nil {
		adapted.BorrowerID = bookEntry.BorrowerID.String()
	}
	return adapted
}

func adaptBookIdToUUID(adptBook AdaptedBook) book.Book {
	bookToReturn := book.Book{
		ID:              uuid.MustParse(adptBook.ID),
		Title:           adptBook.Title,
		Author:          adptBook.Author,
		Category:        adptBook.Category,
		ISBN:            adptBook.ISBN,
		Description:     adptBook.Description,
		CoverPath:       adptBook.CoverPath,
		TotalCopies:     adptBook.TotalCopies,
		AvailableCopies: adptBook.AvailableCopies,
		Status:          adptBook.Status,
		BorrowedAt:      adptBook.BorrowedAt,
		DueDate:         adptBook.DueDate,
		CreatedAt:       adptBook.CreatedAt,
		UpdatedAt:       adptBook.UpdatedAt,
	}
	if adptBook.BorrowerID != "" {
		id := uuid.MustParse(adptBook.BorrowerID)
		bookToReturn.BorrowerID = &id
	}
	return bookToReturn
}

type AdaptedBorrow struct {
	ID         string
	UserID     string
	BookID     string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
	Fine       int
	CreatedAt  time.Time
}

func adaptBorrowIdToString(record book.BorrowRecord) AdaptedBorrow {
	return AdaptedBorrow{
		ID:         record.ID.String(),
		UserID:     record.UserID.String(),
		BookID:     record.BookID.String(),
		BorrowedAt: record.BorrowedAt,
		DueDate:    record.DueDate,
		ReturnedAt: record.ReturnedAt,
		Fine:       record.Fine,
		CreatedAt:  record.CreatedAt,
	}
}

type AdaptedUser struct {
	ID        string
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
}

func adaptUserIdToString(userEntry book.User) AdaptedUser {
	return AdaptedUser{
		ID:        userEntry.ID.String(),
		Name:      userEntry.Name,
		Email:     userEntry.Email,
		Role:      userEntry.Role,
		CreatedAt: userEntry.CreatedAt,
	}
}

func adaptUserIdToUUID(adptUser AdaptedUser) book.User {
	return book.User{
		ID:        uuid.MustParse(adptUser.ID),
		Name:      adptUser.Name,
		Email:     adptUser.Email,
		Role:      adptUser.Role,
		CreatedAt: adptUser.CreatedAt,
	}
}

// -- Books --

func (store *InMemoryStore) CreateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert("book", adaptBookIdToString(bookEntry)); err != nil {
		return book.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	txn.Commit()
	return bookEntry, nil
}

func (store *InMemoryStore) GetBookByID(ctx context.Context, id uuid.UUID) (book.Book, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", book.ErrResponseBookNotFound)
	}

	return adaptBookIdToUUID(raw.(AdaptedBook)), nil
}

func (store *InMemoryStore) UpdateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("book", "id", bookEntry.ID.String())
	if err != nil {
		return book.Book{}, fmt.Errorf("updating book on db: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("updating book on db: %w", book.ErrResponseBookNotFound)
	}

	updatedBook := raw.(AdaptedBook)
	updatedBook.Title = bookEntry.Title
	updatedBook.Author = bookEntry.Author
	updatedBook.Category = bookEntry.Category
	updatedBook.ISBN = bookEntry.ISBN
	updatedBook.Description = bookEntry.Description
	updatedBook.CoverPath = bookEntry.CoverPath
	updatedBook.TotalCopies = bookEntry.TotalCopies
	updatedBook.AvailableCopies = bookEntry.AvailableCopies
	//CreatedAt and the borrow state fields do not change here.
	updatedBook.UpdatedAt = bookEntry.UpdatedAt

	if err := txn.Insert("book", updatedBook); err != nil {
		return book.Book{}, fmt.Errorf("updating book on db: %w", err)
	}

	txn.Commit()
	return adaptBookIdToUUID(updatedBook), nil
}

func (store *InMemoryStore) DeleteBook(ctx context.Context, id uuid.UUID) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return book.Book{}, fmt.Errorf("deleting book on db: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("deleting book on db: %w", book.ErrResponseBookNotFound)
	}

	deletedBook := raw.(AdaptedBook)
	if err := txn.Delete("book", deletedBook); err != nil {
		return book.Book{}, fmt.Errorf("deleting book on db: %w", err)
	}

	txn.Commit()
	return adaptBookIdToUUID(deletedBook), nil
}

func matchesFilters(b AdaptedBook, filters book.ListBooksFilters) bool {
	if filters.Search != "" {
		search := strings.ToLower(filters.Search)
		if !strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) &&
			!strings.Contains(strings.ToLower(b.Category), search) {
			return false
		}
	}
	if filters.Category != "" && b.Category != filters.Category {
		return false
	}
	if filters.Author != "" && b.Author != filters.Author {
		return false
	}
	if filters.Status != "" && b.Status != filters.Status {
		return false
	}
	return true
}

func (store *InMemoryStore) filteredBooks(filters book.ListBooksFilters) ([]AdaptedBook, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("book", "id")
	if err != nil {
		return nil, err
	}

	books := []AdaptedBook{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(AdaptedBook)
		if matchesFilters(b, filters) {
			books = append(books, b)
		}
	}

	sort.Slice(books, func(i, j int) bool {
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})

	return books, nil
}

func (store *InMemoryStore) ListBooks(ctx context.Context, filters book.ListBooksFilters, page, pageSize int) ([]book.Book, error) {
	books, err := store.filteredBooks(filters)
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}

	start := (page - 1) * pageSize
	if start > len(books) {
		start = len(books)
	}
	end := start + pageSize
	if end > len(books) {
		end = len(books)
	}

	pageOfBooks := []book.Book{}
	for _, b := range books[start:end] {
		pageOfBooks = append(pageOfBooks, adaptBookIdToUUID(b))
	}

	return pageOfBooks, nil
}

func (store *InMemoryStore) CountBooks(ctx context.Context, filters book.ListBooksFilters) (int, error) {
	books, err := store.filteredBooks(filters)
	if err != nil {
		return 0, fmt.Errorf("counting books from db: %w", err)
	}
	return len(books), nil
}

// -- Borrow workflow --

/* Takes one copy for the borrower and appends the ledger record inside one
write transaction. The availability conditions are re-checked under the
transaction, mirroring the conditional update the postgres store issues. */
func (store *InMemoryStore) BorrowBookCopy(ctx context.Context, record book.BorrowRecord) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("book", "id", record.BookID.String())
	if err != nil {
		return book.Book{}, fmt.Errorf("borrowing on db: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("borrowing on db: %w", book.ErrResponseBookNotFound)
	}

	borrowedBook := raw.(AdaptedBook)
	if borrowedBook.Status == book.StatusBorrowed ||
		borrowedBook.AvailableCopies <= 0 ||
		borrowedBook.BorrowerID == record.UserID.String() {
		return book.Book{}, fmt.Errorf("borrowing on db: %w", book.ErrResponseBookUnavailable)
	}

	borrowedAt := record.BorrowedAt
	dueDate := record.DueDate
	borrowedBook.Status = book.StatusBorrowed
	borrowedBook.BorrowerID = record.UserID.String()
	borrowedBook.BorrowedAt = &borrowedAt
	borrowedBook.DueDate = &dueDate
	borrowedBook.AvailableCopies--
	borrowedBook.UpdatedAt = record.BorrowedAt

	if err := txn.Insert("book", borrowedBook); err != nil {
		return book.Book{}, fmt.Errorf("borrowing on db: %w", err)
	}
	if err := txn.Insert("borrow", adaptBorrowIdToString(record)); err != nil {
		return book.Book{}, fmt.Errorf("storing borrow record on db: %w", err)
	}

	txn.Commit()
	return adaptBookIdToUUID(borrowedBook), nil
}

func (store *InMemoryStore) ReturnBookCopy(ctx context.Context, bookID, userID uuid.UUID, returnedAt time.Time, fine int) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("book", "id", bookID.String())
	if err != nil {
		return book.Book{}, fmt.Errorf("returning on db: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("returning on db: %w", book.ErrResponseBookNotFound)
	}

	returnedBook := raw.(AdaptedBook)
	returnedBook.Status = book.StatusAvailable
	returnedBook.BorrowerID = ""
	returnedBook.BorrowedAt = nil
	returnedBook.DueDate = nil
	if returnedBook.AvailableCopies < returnedBook.TotalCopies {
		returnedBook.AvailableCopies++
	}
	returnedBook.UpdatedAt = returnedAt

	if err := txn.Insert("book", returnedBook); err != nil {
		return book.Book{}, fmt.Errorf("returning on db: %w", err)
	}

	// Closing the ledger record is best-effort; the book-side reset stands
	// even when no open record is found.
	open, err := store.openBorrow(txn, bookID.String(), userID.String())
	if err != nil {
		return book.Book{}, fmt.Errorf("closing borrow record on db: %w", err)
	}
	if open == nil {
		log.Printf("returning on db: no open borrow record for book %s and user %s", bookID, userID)
	} else {
		closed := *open
		closed.ReturnedAt = &returnedAt
		closed.Fine = fine
		if err := txn.Insert("borrow", closed); err != nil {
			return book.Book{}, fmt.Errorf("closing borrow record on db: %w", err)
		}
	}

	txn.Commit()
	return adaptBookIdToUUID(returnedBook), nil
}

/* Finds the newest open ledger record of (book, user), nil when none exists. */
func (store *InMemoryStore) openBorrow(txn *memdb.Txn, bookID, userID string) (*AdaptedBorrow, error) {
	it, err := txn.Get("borrow", "book_user", bookID, userID)
	if err != nil {
		return nil, err
	}

	var newest *AdaptedBorrow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		r := obj.(AdaptedBorrow)
		if r.ReturnedAt != nil {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			record := r
			newest = &record
		}
	}

	return newest, nil
}
