package book

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/library-service/cmd/api/notifications"

	"github.com/google/uuid"
)

type ServiceAPI interface {
	CreateBook(ctx context.Context, req CreateBookRequest) (Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (Book, error)
	UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) (Book, error)
	ListBooks(ctx context.Context, req ListBooksRequest) (PagedBooks, error)
	BorrowBook(ctx context.Context, bookID, userID uuid.UUID) (BorrowReceipt, error)
	ReturnBook(ctx context.Context, bookID, userID uuid.UUID) (ReturnReceipt, error)
	UserHistory(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error)
	RecentBorrowings(ctx context.Context) ([]RecentBorrowing, error)
	DashboardStats(ctx context.Context) (DashboardStats, error)
}

type Repository interface {
	CreateBook(ctx context.Context, bookEntry Book) (Book, error)
	GetBookByID(ctx context.Context, id uuid.UUID) (Book, error)
	UpdateBook(ctx context.Context, bookEntry Book) (Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) (Book, error)
	ListBooks(ctx context.Context, filters ListBooksFilters, page, pageSize int) ([]Book, error)
	CountBooks(ctx context.Context, filters ListBooksFilters) (int, error)
	BorrowBookCopy(ctx context.Context, record BorrowRecord) (Book, error)
	ReturnBookCopy(ctx context.Context, bookID, userID uuid.UUID, returnedAt time.Time, fine int) (Book, error)
	ListBorrowsByUser(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error)
	ListRecentBorrows(ctx context.Context, limit int) ([]RecentBorrowing, error)
	CountAvailableBooks(ctx context.Context) (int, error)
	CountOpenBorrows(ctx context.Context) (int, error)
	CountOverdueBorrows(ctx context.Context, now time.Time) (int, error)
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, userEntry User) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
}

// CoverStore removes a previously accepted cover image. Used to roll back the
// asset when persisting a new book fails.
type CoverStore interface {
	Remove(path string) error
}

type Service struct {
	repo   Repository
	covers CoverStore
	ntfy   *notifications.Ntfy
}

func NewService(repo Repository, covers CoverStore, ntfy *notifications.Ntfy) *Service {
	return &Service{repo: repo, covers: covers, ntfy: ntfy}
}

/* Validates the entry, then stores it as a new book. A cover image accepted
before a failed store call is removed, so no orphaned assets are left behind. */
func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (Book, error) {
	if err := FilledFields(req); err != nil {
		return Book{}, err
	}

	available := *req.TotalCopies
	if req.AvailableCopies != nil {
		available = *req.AvailableCopies
	}
	if available < 0 || available > *req.TotalCopies {
		return Book{}, ErrResponseCopiesInvalid
	}

	createdAt := time.Now().UTC().Round(time.Millisecond)
	newBook := Book{
		ID:              uuid.New(),
		Title:           req.Title,
		Author:          req.Author,
		Category:        req.Category,
		ISBN:            req.ISBN,
		Description:     req.Description,
		CoverPath:       req.CoverPath,
		TotalCopies:     *req.TotalCopies,
		AvailableCopies: available,
		Status:          StatusAvailable,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}

	storedBook, err := s.repo.CreateBook(ctx, newBook)
	if err != nil {
		if req.CoverPath != "" {
			if rmErr := s.covers.Remove(req.CoverPath); rmErr != nil {
				log.Println("removing cover after failed create:", rmErr)
			}
		}
		return Book{}, repositoryError("creating book", err)
	}

	go s.notifyBookCreated(storedBook)

	return storedBook, nil
}

func (s *Service) GetBook(ctx context.Context, id uuid.UUID) (Book, error) {
	return s.repo.GetBookByID(ctx, id)
}

/* Applies a partial update over the stored book. String fields only overwrite
when non-empty; the copy counters overwrite whenever provided, zero included. */
func (s *Service) UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error) {
	storedBook, err := s.repo.GetBookByID(ctx, req.ID)
	if err != nil {
		return Book{}, err
	}

	if req.Title != "" {
		storedBook.Title = req.Title
	}
	if req.Author != "" {
		storedBook.Author = req.Author
	}
	if req.Category != "" {
		storedBook.Category = req.Category
	}
	if req.ISBN != "" {
		storedBook.ISBN = req.ISBN
	}
	if req.Description != "" {
		storedBook.Description = req.Description
	}
	if req.CoverPath != "" {
		storedBook.CoverPath = req.CoverPath
	}
	if req.TotalCopies != nil {
		storedBook.TotalCopies = *req.TotalCopies
	}
	if req.AvailableCopies != nil {
		storedBook.AvailableCopies = *req.AvailableCopies
	}
	if storedBook.AvailableCopies < 0 || storedBook.AvailableCopies > storedBook.TotalCopies {
		return Book{}, ErrResponseCopiesInvalid
	}
	storedBook.UpdatedAt = time.Now().UTC().Round(time.Millisecond)

	updatedBook, err := s.repo.UpdateBook(ctx, storedBook)
	if err != nil {
		if errors.Is(err, ErrResponseBookNotFound) {
			return Book{}, err
		}
		return Book{}, repositoryError("updating book", err)
	}

	return updatedBook, nil
}

/* Removes the book record. Borrow history referencing it is kept and stays
queryable; enrichment degrades to empty book data. */
func (s *Service) DeleteBook(ctx context.Context, id uuid.UUID) (Book, error) {
	return s.repo.DeleteBook(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, req ListBooksRequest) (PagedBooks, error) {
	if req.Page < 1 || req.PageSize < 1 {
		return PagedBooks{}, ErrResponseQueryPageInvalid
	}

	itemsTotal, err := s.repo.CountBooks(ctx, req.Filters)
	if err != nil {
		return PagedBooks{}, repositoryError("counting books", err)
	}

	pagesTotal := itemsTotal / req.PageSize
	if itemsTotal%req.PageSize != 0 {
		pagesTotal++
	}

	results, err := s.repo.ListBooks(ctx, req.Filters, req.Page, req.PageSize)
	if err != nil {
		return PagedBooks{}, repositoryError("listing books", err)
	}

	pageOfBooks := PagedBooks{
		PageCurrent: req.Page,
		PageTotal:   pagesTotal,
		PageSize:    req.PageSize,
		ItemsTotal:  itemsTotal,
		Results:     results,
	}

	return pageOfBooks, nil
}

func (s *Service) notifyBookCreated(b Book) {
	if err := s.ntfy.BookCreated(b.Title, b.TotalCopies); err != nil {
		log.Println(err)
	}
}

/* Wraps a repository failure keeping the taxonomy error matchable with errors.Is. */
func repositoryError(action string, err error) error {
	errRepo := ErrResponse{
		Code:    ErrResponseFromRepository.Code,
		Message: ErrResponseFromRepository.Message + err.Error(),
	}
	return fmt.Errorf("%s: %w", action, errRepo)
}
