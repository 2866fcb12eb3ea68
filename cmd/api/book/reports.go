package book

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// RecentBorrowingsLimit caps how many ledger entries the recent-activity
// report returns.
const RecentBorrowingsLimit = 10

// HistoryEntry is a ledger record enriched with data from the referenced
// book. The book fields are nil when the book was deleted after the loan.
type HistoryEntry struct {
	ID           uuid.UUID
	BookID       uuid.UUID
	BookTitle    *string
	BookAuthor   *string
	BookCategory *string
	BorrowedAt   time.Time
	DueDate      time.Time
	ReturnedAt   *time.Time
	Fine         int
	Status       string
}

// RecentBorrowing is a ledger record enriched with book and user data. Nil
// enrichment fields mean the referent no longer resolves.
type RecentBorrowing struct {
	ID         uuid.UUID
	BookID     uuid.UUID
	BookTitle  *string
	BookAuthor *string
	UserID     uuid.UUID
	UserName   *string
	UserEmail  *string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
}

type DashboardStats struct {
	TotalBooks     int
	AvailableBooks int
	ActiveBorrows  int
	OverdueBorrows int
	TotalUsers     int
}

/* Returns every ledger record of the user, newest first, labelled Returned or
Borrowed. Records pointing at a deleted book come back with empty book data. */
func (s *Service) UserHistory(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error) {
	entries, err := s.repo.ListBorrowsByUser(ctx, userID)
	if err != nil {
		return nil, repositoryError("listing user history", err)
	}

	for i := range entries {
		if entries[i].ReturnedAt != nil {
			entries[i].Status = "Returned"
		} else {
			entries[i].Status = StatusBorrowed
		}
	}

	return entries, nil
}

/* Returns the most recently created ledger records, newest first. Records
whose book or user no longer resolves are dropped from the result and logged
so the dangling reference can be cleaned up. */
func (s *Service) RecentBorrowings(ctx context.Context) ([]RecentBorrowing, error) {
	borrowings, err := s.repo.ListRecentBorrows(ctx, RecentBorrowingsLimit)
	if err != nil {
		return nil, repositoryError("listing recent borrowings", err)
	}

	results := []RecentBorrowing{}
	for _, b := range borrowings {
		if b.BookTitle == nil || b.UserName == nil {
			log.Printf("recent borrowings: record %s references missing book %s or user %s", b.ID, b.BookID, b.UserID)
			continue
		}
		results = append(results, b)
	}

	return results, nil
}

/* Gathers the five dashboard counters. Each counter is its own query; the
numbers are not guaranteed to come from a single point in time. */
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	totalBooks, err := s.repo.CountBooks(ctx, ListBooksFilters{})
	if err != nil {
		return DashboardStats{}, repositoryError("counting books", err)
	}

	availableBooks, err := s.repo.CountAvailableBooks(ctx)
	if err != nil {
		return DashboardStats{}, repositoryError("counting available books", err)
	}

	activeBorrows, err := s.repo.CountOpenBorrows(ctx)
	if err != nil {
		return DashboardStats{}, repositoryError("counting open borrows", err)
	}

	overdueBorrows, err := s.repo.CountOverdueBorrows(ctx, time.Now().UTC())
	if err != nil {
		return DashboardStats{}, repositoryError("counting overdue borrows", err)
	}

	totalUsers, err := s.repo.CountUsers(ctx)
	if err != nil {
		return DashboardStats{}, repositoryError("counting users", err)
	}

	stats := DashboardStats{
		TotalBooks:     totalBooks,
		AvailableBooks: availableBooks,
		ActiveBorrows:  activeBorrows,
		OverdueBorrows: overdueBorrows,
		TotalUsers:     totalUsers,
	}

	return stats, nil
}
