package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

type HistoryEntryResponse struct {
	ID         uuid.UUID  `json:"id"`
	BookID     uuid.UUID  `json:"bookId"`
	Title      *string    `json:"title"`
	Author     *string    `json:"author"`
	Category   *string    `json:"category"`
	BorrowedAt time.Time  `json:"borrowedAt"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
	Fine       int        `json:"fine"`
	Status     string     `json:"status"`
}

/* Returns the borrow history of the requesting user, newest first. */
func (h *BookHandler) userHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	entries, err := h.bookService.UserHistory(r.Context(), userID)
	if err != nil {
		handleError(err, w)
		return
	}

	history := []HistoryEntryResponse{}
	for _, e := range entries {
		history = append(history, HistoryEntryResponse{
			ID:         e.ID,
			BookID:     e.BookID,
			Title:      e.BookTitle,
			Author:     e.BookAuthor,
			Category:   e.BookCategory,
			BorrowedAt: e.BorrowedAt,
			DueDate:    e.DueDate,
			ReturnedAt: e.ReturnedAt,
			Fine:       e.Fine,
			Status:     e.Status,
		})
	}

	responseJSON(w, http.StatusOK, history)
}

type RecentBorrowingResponse struct {
	ID         uuid.UUID  `json:"id"`
	BookID     uuid.UUID  `json:"bookId"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	UserID     uuid.UUID  `json:"userId"`
	UserName   string     `json:"userName"`
	UserEmail  string     `json:"userEmail"`
	BorrowedAt time.Time  `json:"borrowedAt"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
}

/* Returns the latest borrowings across all users. */
func (h *BookHandler) recentBorrowings(w http.ResponseWriter, r *http.Request) {
	borrowings, err := h.bookService.RecentBorrowings(r.Context())
	if err != nil {
		handleError(err, w)
		return
	}

	// The service already dropped entries with dangling references, so the
	// enrichment pointers are safe to dereference here.
	recent := []RecentBorrowingResponse{}
	for _, b := range borrowings {
		recent = append(recent, RecentBorrowingResponse{
			ID:         b.ID,
			BookID:     b.BookID,
			Title:      *b.BookTitle,
			Author:     *b.BookAuthor,
			UserID:     b.UserID,
			UserName:   *b.UserName,
			UserEmail:  *b.UserEmail,
			BorrowedAt: b.BorrowedAt,
			DueDate:    b.DueDate,
			ReturnedAt: b.ReturnedAt,
		})
	}

	responseJSON(w, http.StatusOK, recent)
}

type DashboardStatsResponse struct {
	TotalBooks     int `json:"totalBooks"`
	AvailableBooks int `json:"availableBooks"`
	ActiveBorrows  int `json:"activeBorrows"`
	OverdueBorrows int `json:"overdueBorrows"`
	TotalUsers     int `json:"totalUsers"`
}

/* Returns the dashboard counters. */
func (h *BookHandler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.bookService.DashboardStats(r.Context())
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusOK, DashboardStatsResponse{
		TotalBooks:     stats.TotalBooks,
		AvailableBooks: stats.AvailableBooks,
		ActiveBorrows:  stats.ActiveBorrows,
		OverdueBorrows: stats.OverdueBorrows,
		TotalUsers:     stats.TotalUsers,
	})
}
