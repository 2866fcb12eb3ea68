package book_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"
	"github.com/matryer/is"
	gomock "go.uber.org/mock/gomock"
)

func TestUserHistory(t *testing.T) {

	t.Run("labels open and closed records", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		userID := uuid.New()
		returnedAt := time.Now().UTC().Add(-time.Hour)
		entries := []book.HistoryEntry{
			{
				ID:         uuid.New(),
				BookID:     uuid.New(),
				BookTitle:  toPointer("Open loan"),
				BorrowedAt: time.Now().UTC().Add(-24 * time.Hour),
			},
			{
				ID:         uuid.New(),
				BookID:     uuid.New(),
				BookTitle:  toPointer("Closed loan"),
				BorrowedAt: time.Now().UTC().Add(-48 * time.Hour),
				ReturnedAt: &returnedAt,
				Fine:       5,
			},
		}

		mockRepo.EXPECT().ListBorrowsByUser(gomock.Any(), userID).Return(entries, nil)

		history, err := mS.UserHistory(ctx, userID)
		is.NoErr(err)
		is.Equal(len(history), 2)
		is.Equal(history[0].Status, book.StatusBorrowed)
		is.Equal(history[1].Status, "Returned")
		is.Equal(history[1].Fine, 5)
	})

	t.Run("keeps records whose book was deleted", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		userID := uuid.New()
		entries := []book.HistoryEntry{
			{
				ID:         uuid.New(),
				BookID:     uuid.New(),
				BorrowedAt: time.Now().UTC().Add(-24 * time.Hour),
			},
		}

		mockRepo.EXPECT().ListBorrowsByUser(gomock.Any(), userID).Return(entries, nil)

		history, err := mS.UserHistory(ctx, userID)
		is.NoErr(err)
		is.Equal(len(history), 1)
		is.True(history[0].BookTitle == nil)
		is.Equal(history[0].Status, book.StatusBorrowed)
	})

	t.Run("expected repository error", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		userID := uuid.New()
		mockRepo.EXPECT().ListBorrowsByUser(gomock.Any(), userID).Return(nil, errors.New("connection refused"))

		_, err := mS.UserHistory(ctx, userID)
		is.True(errors.Is(err, book.ErrResponseFromRepository))
	})
}

func TestRecentBorrowings(t *testing.T) {

	t.Run("drops records with a dangling reference", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		borrowings := []book.RecentBorrowing{
			{
				ID:        uuid.New(),
				BookID:    uuid.New(),
				BookTitle: toPointer("Resolvable book"),
				UserID:    uuid.New(),
				UserName:  toPointer("Resolvable user"),
			},
			{
				ID:       uuid.New(),
				BookID:   uuid.New(), //the book was deleted after the loan.
				UserID:   uuid.New(),
				UserName: toPointer("Another user"),
			},
			{
				ID:        uuid.New(),
				BookID:    uuid.New(),
				BookTitle: toPointer("Orphaned loan"),
				UserID:    uuid.New(), //no matching user.
			},
		}

		mockRepo.EXPECT().ListRecentBorrows(gomock.Any(), book.RecentBorrowingsLimit).Return(borrowings, nil)

		results, err := mS.RecentBorrowings(ctx)
		is.NoErr(err)
		is.Equal(len(results), 1)
		is.Equal(*results[0].BookTitle, "Resolvable book")
	})

	t.Run("an empty ledger comes back as an empty slice", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		mockRepo.EXPECT().ListRecentBorrows(gomock.Any(), book.RecentBorrowingsLimit).Return([]book.RecentBorrowing{}, nil)

		results, err := mS.RecentBorrowings(ctx)
		is.NoErr(err)
		is.Equal(len(results), 0)
	})
}

func TestDashboardStats(t *testing.T) {

	t.Run("assembles the five counters", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		mockRepo.EXPECT().CountBooks(gomock.Any(), book.ListBooksFilters{}).Return(42, nil)
		mockRepo.EXPECT().CountAvailableBooks(gomock.Any()).Return(30, nil)
		mockRepo.EXPECT().CountOpenBorrows(gomock.Any()).Return(12, nil)
		mockRepo.EXPECT().CountOverdueBorrows(gomock.Any(), gomock.Any()).Return(3, nil)
		mockRepo.EXPECT().CountUsers(gomock.Any()).Return(25, nil)

		stats, err := mS.DashboardStats(ctx)
		is.NoErr(err)
		is.Equal(stats, book.DashboardStats{
			TotalBooks:     42,
			AvailableBooks: 30,
			ActiveBorrows:  12,
			OverdueBorrows: 3,
			TotalUsers:     25,
		})
	})

	t.Run("expected repository error", func(t *testing.T) {
		is := is.New(t)
		mS, mockRepo, _ := newServiceWithMocks(t)

		mockRepo.EXPECT().CountBooks(gomock.Any(), book.ListBooksFilters{}).Return(0, errors.New("connection refused"))

		_, err := mS.DashboardStats(ctx)
		is.True(errors.Is(err, book.ErrResponseFromRepository))
	})
}
