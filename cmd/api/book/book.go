package book

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusAvailable = "Available"
	StatusBorrowed  = "Borrowed"
)

type Book struct {
	ID              uuid.UUID
	Title           string
	Author          string
	Category        string
	ISBN            string
	Description     string
	CoverPath       string
	TotalCopies     int
	AvailableCopies int
	Status          string
	BorrowerID      *uuid.UUID
	BorrowedAt      *time.Time
	DueDate         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateBookRequest struct {
	Title           string
	Author          string
	Category        string
	ISBN            string
	Description     string
	CoverPath       string
	TotalCopies     *int
	AvailableCopies *int
}

type UpdateBookRequest struct {
	ID              uuid.UUID
	Title           string
	Author          string
	Category        string
	ISBN            string
	Description     string
	CoverPath       string
	TotalCopies     *int
	AvailableCopies *int
}

type ListBooksFilters struct {
	Search   string
	Category string
	Author   string
	Status   string
}

type ListBooksRequest struct {
	Filters  ListBooksFilters
	Page     int
	PageSize int
}

type PagedBooks struct {
	PageCurrent int
	PageTotal   int
	PageSize    int
	ItemsTotal  int
	Results     []Book
}

/* Verifies if all required entry fields are filled and returns a warning message if not. */
func FilledFields(req CreateBookRequest) error {
	if req.Title == "" {
		return ErrResponseBookEntryBlankFields
	}
	if req.Author == "" {
		return ErrResponseBookEntryBlankFields
	}
	if req.Category == "" {
		return ErrResponseBookEntryBlankFields
	}
	if req.ISBN == "" {
		return ErrResponseBookEntryBlankFields
	}
	if req.TotalCopies == nil {
		return ErrResponseBookEntryBlankFields
	}

	return nil
}
