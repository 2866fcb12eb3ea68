package book

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	// LoanPeriodDays is how long a member may keep a copy before it is overdue.
	LoanPeriodDays = 7
	// FinePerDay is charged for every started day past the due date.
	FinePerDay = 5
)

// BorrowRecord is one entry of the borrow ledger. It is created on borrow and
// closed exactly once on return; it is never deleted, even when the book is.
type BorrowRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BookID     uuid.UUID
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
	Fine       int
	CreatedAt  time.Time
}

type BorrowReceipt struct {
	Title      string
	BorrowedAt time.Time
	DueDate    time.Time
}

type ReturnReceipt struct {
	Title      string
	ReturnedAt time.Time
	Fine       int
	Message    string
}

/* Moves the book from Available to Borrowed for the requesting user. The copy
decrement and the ledger insert happen in one repository call, guarded by a
conditional update, so two concurrent requests cannot take the last copy twice. */
func (s *Service) BorrowBook(ctx context.Context, bookID, userID uuid.UUID) (BorrowReceipt, error) {
	storedBook, err := s.repo.GetBookByID(ctx, bookID)
	if err != nil {
		return BorrowReceipt{}, err
	}

	if storedBook.BorrowerID != nil && *storedBook.BorrowerID == userID {
		return BorrowReceipt{}, ErrResponseAlreadyBorrowed
	}
	if storedBook.Status == StatusBorrowed || storedBook.AvailableCopies <= 0 {
		return BorrowReceipt{}, ErrResponseBookUnavailable
	}

	borrowedAt := time.Now().UTC().Round(time.Millisecond)
	record := BorrowRecord{
		ID:         uuid.New(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: borrowedAt,
		DueDate:    borrowedAt.AddDate(0, 0, LoanPeriodDays),
		CreatedAt:  borrowedAt,
	}

	borrowedBook, err := s.repo.BorrowBookCopy(ctx, record)
	if err != nil {
		// A concurrent request may have taken the copy between the read
		// above and the conditional update.
		if errors.Is(err, ErrResponseBookUnavailable) {
			return BorrowReceipt{}, ErrResponseBookUnavailable
		}
		if errors.Is(err, ErrResponseBookNotFound) {
			return BorrowReceipt{}, err
		}
		return BorrowReceipt{}, repositoryError("borrowing book", err)
	}

	receipt := BorrowReceipt{
		Title:      borrowedBook.Title,
		BorrowedAt: record.BorrowedAt,
		DueDate:    record.DueDate,
	}

	return receipt, nil
}

/* Moves the book back to Available, closing the open ledger record of the
returning user with the computed fine. Only the recorded borrower may return. */
func (s *Service) ReturnBook(ctx context.Context, bookID, userID uuid.UUID) (ReturnReceipt, error) {
	storedBook, err := s.repo.GetBookByID(ctx, bookID)
	if err != nil {
		return ReturnReceipt{}, err
	}

	if storedBook.BorrowerID == nil || *storedBook.BorrowerID != userID {
		return ReturnReceipt{}, ErrResponseNotBorrowedByUser
	}

	returnedAt := time.Now().UTC().Round(time.Millisecond)
	fine := 0
	if storedBook.DueDate != nil {
		fine = Fine(returnedAt, *storedBook.DueDate)
	}

	returnedBook, err := s.repo.ReturnBookCopy(ctx, bookID, userID, returnedAt, fine)
	if err != nil {
		if errors.Is(err, ErrResponseBookNotFound) {
			return ReturnReceipt{}, err
		}
		return ReturnReceipt{}, repositoryError("returning book", err)
	}

	receipt := ReturnReceipt{
		Title:      returnedBook.Title,
		ReturnedAt: returnedAt,
		Fine:       fine,
		Message:    fineMessage(fine),
	}

	if fine > 0 {
		go s.notifyFineApplied(returnedBook, fine)
	}

	return receipt, nil
}

/* Computes the late fee for a return: every started day past the due date
counts as a whole day. Returning exactly on the due date costs nothing. */
func Fine(returnedAt, dueDate time.Time) int {
	if !returnedAt.After(dueDate) {
		return 0
	}

	late := returnedAt.Sub(dueDate)
	daysLate := int(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		daysLate++
	}

	return daysLate * FinePerDay
}

func fineMessage(fine int) string {
	if fine > 0 {
		return fmt.Sprintf("Book returned successfully. Fine applied: %d", fine)
	}
	return "Book returned successfully. No fine applied."
}

func (s *Service) notifyFineApplied(b Book, fine int) {
	if err := s.ntfy.FineApplied(b.Title, fine); err != nil {
		log.Println(err)
	}
}
