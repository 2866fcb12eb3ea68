package book_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"
	"github.com/matryer/is"
	gomock "go.uber.org/mock/gomock"
)

func availableBook() book.Book {
	return book.Book{
		ID:              uuid.New(),
		Title:           "Borrowable book",
		Author:          "Some Author",
		Category:        "Testing",
		ISBN:            "978-85-333-0227-8",
		TotalCopies:     2,
		AvailableCopies: 2,
		Status:          book.StatusAvailable,
	}
}

func TestBorrowBook(t *testing.T) {

	t.Run("borrows an available book without errors", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		storedBook := availableBook()
		userID := uuid.New()

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)
		mockRepo.EXPECT().BorrowBookCopy(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, record book.BorrowRecord) (book.Book, error) {
			is.True(record.ID != uuid.Nil)
			is.Equal(record.UserID, userID)
			is.Equal(record.BookID, storedBook.ID)
			is.Equal(record.DueDate, record.BorrowedAt.AddDate(0, 0, book.LoanPeriodDays))
			is.True(record.ReturnedAt == nil)
			is.Equal(record.Fine, 0)
			return storedBook, nil
		})

		receipt, err := mS.BorrowBook(ctx, storedBook.ID, userID)
		is.NoErr(err)
		is.Equal(receipt.Title, storedBook.Title)
		is.Equal(receipt.DueDate, receipt.BorrowedAt.AddDate(0, 0, 7))
	})

	t.Run("expected unavailable error when no copies are left", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		storedBook := availableBook()
		storedBook.AvailableCopies = 0

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)

		_, err := mS.BorrowBook(ctx, storedBook.ID, uuid.New())
		is.True(errors.Is(err, book.ErrResponseBookUnavailable))
	})

	t.Run("expected unavailable error when another user holds the book", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		otherUser := uuid.New()
		storedBook := availableBook()
		storedBook.Status = book.StatusBorrowed
		storedBook.BorrowerID = &otherUser

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)

		_, err := mS.BorrowBook(ctx, storedBook.ID, uuid.New())
		is.True(errors.Is(err, book.ErrResponseBookUnavailable))
	})

	t.Run("expected already borrowed error for the holding user", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		userID := uuid.New()
		storedBook := availableBook()
		storedBook.Status = book.StatusBorrowed
		storedBook.BorrowerID = &userID

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)

		_, err := mS.BorrowBook(ctx, storedBook.ID, userID)
		is.True(errors.Is(err, book.ErrResponseAlreadyBorrowed))
	})

	t.Run("expected book not found error", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		id := uuid.New()
		mockRepo.EXPECT().GetBookByID(gomock.Any(), id).Return(book.Book{}, book.ErrResponseBookNotFound)

		_, err := mS.BorrowBook(ctx, id, uuid.New())
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})

	t.Run("expected unavailable error when the conditional update loses the race", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		storedBook := availableBook()

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)
		mockRepo.EXPECT().BorrowBookCopy(gomock.Any(), gomock.Any()).
			Return(book.Book{}, fmt.Errorf("borrowing copy: %w", book.ErrResponseBookUnavailable))

		_, err := mS.BorrowBook(ctx, storedBook.ID, uuid.New())
		is.True(errors.Is(err, book.ErrResponseBookUnavailable))
	})
}

func TestReturnBook(t *testing.T) {

	t.Run("returns a borrowed book without a fine", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		userID := uuid.New()
		dueDate := time.Now().UTC().Add(72 * time.Hour)
		storedBook := availableBook()
		storedBook.Status = book.StatusBorrowed
		storedBook.AvailableCopies = 1
		storedBook.BorrowerID = &userID
		storedBook.DueDate = &dueDate

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)
		mockRepo.EXPECT().ReturnBookCopy(gomock.Any(), storedBook.ID, userID, gomock.Any(), 0).Return(storedBook, nil)

		receipt, err := mS.ReturnBook(ctx, storedBook.ID, userID)
		is.NoErr(err)
		is.Equal(receipt.Title, storedBook.Title)
		is.Equal(receipt.Fine, 0)
		is.Equal(receipt.Message, "Book returned successfully. No fine applied.")
	})

	t.Run("charges a fine for a late return", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		userID := uuid.New()
		dueDate := time.Now().UTC().Add(-25 * time.Hour) //one full day plus a started one.
		storedBook := availableBook()
		storedBook.Status = book.StatusBorrowed
		storedBook.BorrowerID = &userID
		storedBook.DueDate = &dueDate

		expectedFine := 2 * book.FinePerDay

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)
		mockRepo.EXPECT().ReturnBookCopy(gomock.Any(), storedBook.ID, userID, gomock.Any(), expectedFine).Return(storedBook, nil)

		receipt, err := mS.ReturnBook(ctx, storedBook.ID, userID)
		is.NoErr(err)
		is.Equal(receipt.Fine, expectedFine)
		is.Equal(receipt.Message, "Book returned successfully. Fine applied: 10")
	})

	t.Run("expected not borrowed error for a different user", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		otherUser := uuid.New()
		storedBook := availableBook()
		storedBook.Status = book.StatusBorrowed
		storedBook.BorrowerID = &otherUser

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)

		_, err := mS.ReturnBook(ctx, storedBook.ID, uuid.New())
		is.True(errors.Is(err, book.ErrResponseNotBorrowedByUser))
	})

	t.Run("expected not borrowed error when the book has no borrower", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		storedBook := availableBook()

		mockRepo.EXPECT().GetBookByID(gomock.Any(), storedBook.ID).Return(storedBook, nil)

		_, err := mS.ReturnBook(ctx, storedBook.ID, uuid.New())
		is.True(errors.Is(err, book.ErrResponseNotBorrowedByUser))
	})
}

func TestFine(t *testing.T) {
	dueDate := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		desc       string
		returnedAt time.Time
		want       int
	}{
		{desc: "before the due date", returnedAt: dueDate.Add(-time.Hour), want: 0},
		{desc: "exactly on the due date", returnedAt: dueDate, want: 0},
		{desc: "one second late counts as one day", returnedAt: dueDate.Add(time.Second), want: 5},
		{desc: "almost a full day late", returnedAt: dueDate.Add(24*time.Hour - time.Minute), want: 5},
		{desc: "exactly one day late", returnedAt: dueDate.Add(24 * time.Hour), want: 5},
		{desc: "a day and a second late counts as two", returnedAt: dueDate.Add(24*time.Hour + time.Second), want: 10},
		{desc: "ten days late", returnedAt: dueDate.AddDate(0, 0, 10), want: 50},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			is := is.New(t)
			is.Equal(book.Fine(tC.returnedAt, dueDate), tC.want)
		})
	}
}
