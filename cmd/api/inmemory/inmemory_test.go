package inmemory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/matryer/is"
)

var ctx context.Context = context.Background()

func newStore(t *testing.T) *inmemory.InMemoryStore {
	t.Helper()
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func newBook(title string) book.Book {
	createdAt := time.Now().UTC().Round(time.Millisecond)
	return book.Book{
		ID:              uuid.New(),
		Title:           title,
		Author:          "Some Author",
		Category:        "Testing",
		ISBN:            "978-85-333-0227-3",
		TotalCopies:     2,
		AvailableCopies: 2,
		Status:          book.StatusAvailable,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func newRecord(bookID, userID uuid.UUID, createdAt time.Time) book.BorrowRecord {
	return book.BorrowRecord{
		ID:         uuid.New(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: createdAt,
		DueDate:    createdAt.AddDate(0, 0, book.LoanPeriodDays),
		CreatedAt:  createdAt,
	}
}

func TestBookRoundTrip(t *testing.T) {

	t.Run("stores and finds a book", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		storedBook := newBook("Stored book")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)

		foundBook, err := store.GetBookByID(ctx, storedBook.ID)
		is.NoErr(err)
		is.Equal(foundBook, storedBook)
	})

	t.Run("expected book not found error", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		_, err := store.GetBookByID(ctx, uuid.New())
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})

	t.Run("updates the stored fields, keeping the borrow state", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		storedBook := newBook("Before update")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)

		borrowerID := uuid.New()
		_, err = store.BorrowBookCopy(ctx, newRecord(storedBook.ID, borrowerID, time.Now().UTC().Round(time.Millisecond)))
		is.NoErr(err)

		storedBook.Title = "After update"
		storedBook.UpdatedAt = time.Now().UTC().Round(time.Millisecond)
		updatedBook, err := store.UpdateBook(ctx, storedBook)
		is.NoErr(err)
		is.Equal(updatedBook.Title, "After update")
		is.Equal(updatedBook.Status, book.StatusBorrowed) //the borrow state survives the field update.
		is.Equal(*updatedBook.BorrowerID, borrowerID)
	})

	t.Run("deletes a book once", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		storedBook := newBook("Doomed book")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)

		deletedBook, err := store.DeleteBook(ctx, storedBook.ID)
		is.NoErr(err)
		is.Equal(deletedBook.Title, storedBook.Title)

		_, err = store.DeleteBook(ctx, storedBook.ID)
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})
}

func TestListBooks(t *testing.T) {

	seedBooks := func(t *testing.T, store *inmemory.InMemoryStore, count int) []book.Book {
		t.Helper()
		books := []book.Book{}
		base := time.Now().UTC().Round(time.Millisecond)
		for i := 0; i < count; i++ {
			b := newBook(fmt.Sprintf("Seeded book %02d", i))
			b.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if _, err := store.CreateBook(ctx, b); err != nil {
				t.Fatal(err)
			}
			books = append(books, b)
		}
		return books
	}

	t.Run("paginates newest first", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		books := seedBooks(t, store, 5)

		page, err := store.ListBooks(ctx, book.ListBooksFilters{}, 1, 2)
		is.NoErr(err)
		is.Equal(len(page), 2)
		is.Equal(page[0].Title, books[4].Title)
		is.Equal(page[1].Title, books[3].Title)

		lastPage, err := store.ListBooks(ctx, book.ListBooksFilters{}, 3, 2)
		is.NoErr(err)
		is.Equal(len(lastPage), 1)
		is.Equal(lastPage[0].Title, books[0].Title)
	})

	t.Run("a page past the end comes back empty", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		seedBooks(t, store, 3)

		page, err := store.ListBooks(ctx, book.ListBooksFilters{}, 9, 10)
		is.NoErr(err)
		is.Equal(len(page), 0)
	})

	t.Run("the search filter matches title, author and category, case insensitive", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		hobbit := newBook("The Hobbit")
		hobbit.Author = "J.R.R. Tolkien"
		hobbit.Category = "Fantasy"
		_, err := store.CreateBook(ctx, hobbit)
		is.NoErr(err)

		other := newBook("Clean Architecture")
		_, err = store.CreateBook(ctx, other)
		is.NoErr(err)

		found, err := store.ListBooks(ctx, book.ListBooksFilters{Search: "tolkien"}, 1, 10)
		is.NoErr(err)
		is.Equal(len(found), 1)
		is.Equal(found[0].Title, "The Hobbit")

		count, err := store.CountBooks(ctx, book.ListBooksFilters{Search: "FANTASY"})
		is.NoErr(err)
		is.Equal(count, 1)
	})

	t.Run("the category and status filters match exactly", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		borrowed := newBook("Borrowed one")
		borrowed.Category = "Fantasy"
		_, err := store.CreateBook(ctx, borrowed)
		is.NoErr(err)
		_, err = store.BorrowBookCopy(ctx, newRecord(borrowed.ID, uuid.New(), time.Now().UTC()))
		is.NoErr(err)

		available := newBook("Available one")
		available.Category = "Fantasy"
		_, err = store.CreateBook(ctx, available)
		is.NoErr(err)

		found, err := store.ListBooks(ctx, book.ListBooksFilters{Category: "Fantasy", Status: book.StatusAvailable}, 1, 10)
		is.NoErr(err)
		is.Equal(len(found), 1)
		is.Equal(found[0].Title, "Available one")

		none, err := store.ListBooks(ctx, book.ListBooksFilters{Category: "fantasy"}, 1, 10)
		is.NoErr(err)
		is.Equal(len(none), 0)
	})
}

func TestBorrowBookCopy(t *testing.T) {

	t.Run("takes a copy and appends the ledger record", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		storedBook := newBook("Borrowable book")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)

		userID := uuid.New()
		record := newRecord(storedBook.ID, userID, time.Now().UTC().Round(time.Millisecond))

		borrowedBook, err := store.BorrowBookCopy(ctx, record)
		is.NoErr(err)
		is.Equal(borrowedBook.Status, book.StatusBorrowed)
		is.Equal(borrowedBook.AvailableCopies, storedBook.AvailableCopies-1)
		is.Equal(*borrowedBook.BorrowerID, userID)
		is.Equal(*borrowedBook.DueDate, record.DueDate)

		openBorrows, err := store.CountOpenBorrows(ctx)
		is.NoErr(err)
		is.Equal(openBorrows, 1)
	})

	t.Run("expected unavailable error when the book is held", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		storedBook := newBook("Contested book")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)

		_, err = store.BorrowBookCopy(ctx, newRecord(storedBook.ID, uuid.New(), time.Now().UTC()))
		is.NoErr(err)

		_, err = store.BorrowBookCopy(ctx, newRecord(storedBook.ID, uuid.New(), time.Now().UTC()))
		is.True(errors.Is(err, book.ErrResponseBookUnavailable))
	})

	t.Run("expected book not found error", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		_, err := store.BorrowBookCopy(ctx, newRecord(uuid.New(), uuid.New(), time.Now().UTC()))
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})
}

func TestReturnBookCopy(t *testing.T) {

	t.Run("resets the book and closes the ledger record", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		storedBook := newBook("Returnable book")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)

		userID := uuid.New()
		_, err = store.BorrowBookCopy(ctx, newRecord(storedBook.ID, userID, time.Now().UTC().Round(time.Millisecond)))
		is.NoErr(err)

		returnedAt := time.Now().UTC().Round(time.Millisecond)
		returnedBook, err := store.ReturnBookCopy(ctx, storedBook.ID, userID, returnedAt, 15)
		is.NoErr(err)
		is.Equal(returnedBook.Status, book.StatusAvailable)
		is.Equal(returnedBook.AvailableCopies, storedBook.AvailableCopies)
		is.True(returnedBook.BorrowerID == nil)
		is.True(returnedBook.DueDate == nil)

		openBorrows, err := store.CountOpenBorrows(ctx)
		is.NoErr(err)
		is.Equal(openBorrows, 0)

		history, err := store.ListBorrowsByUser(ctx, userID)
		is.NoErr(err)
		is.Equal(len(history), 1)
		is.Equal(*history[0].ReturnedAt, returnedAt)
		is.Equal(history[0].Fine, 15)
	})

	t.Run("never raises availableCopies above totalCopies", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		storedBook := newBook("Counted book")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)

		//no borrow happened, the return still resets the book side.
		returnedBook, err := store.ReturnBookCopy(ctx, storedBook.ID, uuid.New(), time.Now().UTC(), 0)
		is.NoErr(err)
		is.Equal(returnedBook.AvailableCopies, storedBook.TotalCopies)
	})
}

func TestListBorrowsByUser(t *testing.T) {

	t.Run("lists the records of one user, newest first", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		userID := uuid.New()
		base := time.Now().UTC().Round(time.Millisecond)

		first := newBook("First loan")
		_, err := store.CreateBook(ctx, first)
		is.NoErr(err)
		_, err = store.BorrowBookCopy(ctx, newRecord(first.ID, userID, base))
		is.NoErr(err)

		second := newBook("Second loan")
		_, err = store.CreateBook(ctx, second)
		is.NoErr(err)
		_, err = store.BorrowBookCopy(ctx, newRecord(second.ID, userID, base.Add(time.Second)))
		is.NoErr(err)

		other := newBook("Someone else's loan")
		_, err = store.CreateBook(ctx, other)
		is.NoErr(err)
		_, err = store.BorrowBookCopy(ctx, newRecord(other.ID, uuid.New(), base.Add(2*time.Second)))
		is.NoErr(err)

		history, err := store.ListBorrowsByUser(ctx, userID)
		is.NoErr(err)
		is.Equal(len(history), 2)
		is.Equal(*history[0].BookTitle, "Second loan")
		is.Equal(*history[1].BookTitle, "First loan")
	})

	t.Run("keeps the record after the book is deleted", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		userID := uuid.New()
		storedBook := newBook("Deleted after loan")
		_, err := store.CreateBook(ctx, storedBook)
		is.NoErr(err)
		_, err = store.BorrowBookCopy(ctx, newRecord(storedBook.ID, userID, time.Now().UTC()))
		is.NoErr(err)

		_, err = store.DeleteBook(ctx, storedBook.ID)
		is.NoErr(err)

		history, err := store.ListBorrowsByUser(ctx, userID)
		is.NoErr(err)
		is.Equal(len(history), 1)
		is.True(history[0].BookTitle == nil) //enrichment degrades, the record stays.
		is.Equal(history[0].BookID, storedBook.ID)
	})
}

func TestListRecentBorrows(t *testing.T) {

	t.Run("trims to the limit, newest first, enriched", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		reader := book.User{ID: uuid.New(), Name: "Some Reader", Email: "reader@example.com", Role: book.RoleMember}
		_, err := store.CreateUser(ctx, reader)
		is.NoErr(err)

		base := time.Now().UTC().Round(time.Millisecond)
		for i := 0; i < 3; i++ {
			b := newBook(fmt.Sprintf("Recent book %d", i))
			_, err := store.CreateBook(ctx, b)
			is.NoErr(err)
			_, err = store.BorrowBookCopy(ctx, newRecord(b.ID, reader.ID, base.Add(time.Duration(i)*time.Second)))
			is.NoErr(err)
		}

		recent, err := store.ListRecentBorrows(ctx, 2)
		is.NoErr(err)
		is.Equal(len(recent), 2)
		is.Equal(*recent[0].BookTitle, "Recent book 2")
		is.Equal(*recent[1].BookTitle, "Recent book 1")
		is.Equal(*recent[0].UserName, reader.Name)
		is.Equal(*recent[0].UserEmail, reader.Email)
	})

	t.Run("leaves the enrichment nil for a missing user", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		b := newBook("Loaned to a ghost")
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)
		_, err = store.BorrowBookCopy(ctx, newRecord(b.ID, uuid.New(), time.Now().UTC()))
		is.NoErr(err)

		recent, err := store.ListRecentBorrows(ctx, 10)
		is.NoErr(err)
		is.Equal(len(recent), 1)
		is.True(recent[0].UserName == nil)
		is.Equal(*recent[0].BookTitle, b.Title)
	})
}

func TestCounters(t *testing.T) {

	t.Run("counts books, users and borrows", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		reader := book.User{ID: uuid.New(), Name: "Some Reader", Email: "reader@example.com", Role: book.RoleMember}
		_, err := store.CreateUser(ctx, reader)
		is.NoErr(err)

		single := newBook("Single copy")
		single.TotalCopies = 1
		single.AvailableCopies = 1
		_, err = store.CreateBook(ctx, single)
		is.NoErr(err)

		plenty := newBook("Plenty of copies")
		_, err = store.CreateBook(ctx, plenty)
		is.NoErr(err)

		//an overdue open borrow takes the single copy.
		overdue := newRecord(single.ID, reader.ID, time.Now().UTC().AddDate(0, 0, -10))
		_, err = store.BorrowBookCopy(ctx, overdue)
		is.NoErr(err)

		availableBooks, err := store.CountAvailableBooks(ctx)
		is.NoErr(err)
		is.Equal(availableBooks, 1)

		openBorrows, err := store.CountOpenBorrows(ctx)
		is.NoErr(err)
		is.Equal(openBorrows, 1)

		overdueBorrows, err := store.CountOverdueBorrows(ctx, time.Now().UTC())
		is.NoErr(err)
		is.Equal(overdueBorrows, 1)

		users, err := store.CountUsers(ctx)
		is.NoErr(err)
		is.Equal(users, 1)
	})
}

func TestUsers(t *testing.T) {

	t.Run("stores and finds a user", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		reader := book.User{
			ID:        uuid.New(),
			Name:      "Some Reader",
			Email:     "reader@example.com",
			Role:      book.RoleMember,
			CreatedAt: time.Now().UTC().Round(time.Millisecond),
		}
		_, err := store.CreateUser(ctx, reader)
		is.NoErr(err)

		foundUser, err := store.GetUserByID(ctx, reader.ID)
		is.NoErr(err)
		is.Equal(foundUser, reader)
	})

	t.Run("expected user not found error", func(t *testing.T) {
		is := is.New(t)
		store := newStore(t)

		_, err := store.GetUserByID(ctx, uuid.New())
		is.True(errors.Is(err, book.ErrResponseUserNotFound))
	})
}
