package http

import (
	"net/http"
	"time"
)

type BorrowResponse struct {
	Title      string    `json:"title"`
	BorrowedAt time.Time `json:"borrowedAt"`
	DueDate    time.Time `json:"dueDate"`
}

/* Borrows the book for the requesting user. */
func (h *BookHandler) borrowBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	userID, ok := userFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	receipt, err := h.bookService.BorrowBook(r.Context(), id, userID)
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusOK, BorrowResponse{
		Title:      receipt.Title,
		BorrowedAt: receipt.BorrowedAt,
		DueDate:    receipt.DueDate,
	})
}

type ReturnResponse struct {
	Title      string    `json:"title"`
	ReturnedAt time.Time `json:"returnedAt"`
	Fine       int       `json:"fine"`
	Message    string    `json:"message"`
}

/* Returns the book previously borrowed by the requesting user. */
func (h *BookHandler) returnBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	userID, ok := userFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	receipt, err := h.bookService.ReturnBook(r.Context(), id, userID)
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusOK, ReturnResponse{
		Title:      receipt.Title,
		ReturnedAt: receipt.ReturnedAt,
		Fine:       receipt.Fine,
		Message:    receipt.Message,
	})
}
