package http

import (
	"encoding/json"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"
)

const (
	pageDefault     = 1
	pageSizeDefault = 10
	pageSizeMax     = 100

	maxMultipartMemory = 32 << 20
)

// CoverSaver accepts an uploaded cover image and returns the path to record
// on the book.
type CoverSaver interface {
	Save(file multipart.File, filename string) (string, error)
}

type BookHandler struct {
	bookService book.ServiceAPI
	covers      CoverSaver
}

func NewBookHandler(bookService book.ServiceAPI, covers CoverSaver) *BookHandler {
	return &BookHandler{bookService: bookService, covers: covers}
}

type BookEntry struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	Category        string `json:"category"`
	ISBN            string `json:"isbn"`
	Description     string `json:"description"`
	TotalCopies     *int   `json:"totalCopies"`
	AvailableCopies *int   `json:"availableCopies"`
}

/* Validates the entry, then stores it as a new book. The body is either plain
json or a multipart form with an optional bookImage file. */
func (h *BookHandler) createBook(w http.ResponseWriter, r *http.Request) {
	bookEntry, coverPath, err := h.decodeBookEntry(w, r)
	if err != nil {
		return
	}

	reqBook := book.CreateBookRequest{
		Title:           bookEntry.Title,
		Author:          bookEntry.Author,
		Category:        bookEntry.Category,
		ISBN:            bookEntry.ISBN,
		Description:     bookEntry.Description,
		CoverPath:       coverPath,
		TotalCopies:     bookEntry.TotalCopies,
		AvailableCopies: bookEntry.AvailableCopies,
	}

	storedBook, err := h.bookService.CreateBook(r.Context(), reqBook)
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusCreated, bookToResponse(storedBook))
}

/* Returns the book with that specific ID. */
func (h *BookHandler) getBookById(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	returnedBook, err := h.bookService.GetBook(r.Context(), id)
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(returnedBook))
}

/* Validates the entry, then applies a partial update over the asked book. */
func (h *BookHandler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	bookEntry, coverPath, err := h.decodeBookEntry(w, r)
	if err != nil {
		return
	}

	reqBook := book.UpdateBookRequest{
		ID:              id,
		Title:           bookEntry.Title,
		Author:          bookEntry.Author,
		Category:        bookEntry.Category,
		ISBN:            bookEntry.ISBN,
		Description:     bookEntry.Description,
		CoverPath:       coverPath,
		TotalCopies:     bookEntry.TotalCopies,
		AvailableCopies: bookEntry.AvailableCopies,
	}

	updatedBook, err := h.bookService.UpdateBook(r.Context(), reqBook)
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(updatedBook))
}

type DeleteBookResponse struct {
	Message string       `json:"message"`
	Book    BookResponse `json:"book"`
}

func (h *BookHandler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	deletedBook, err := h.bookService.DeleteBook(r.Context(), id)
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusOK, DeleteBookResponse{
		Message: "Book deleted successfully.",
		Book:    bookToResponse(deletedBook),
	})
}

/* Returns a paginated list of the stored books, optionally filtered. */
func (h *BookHandler) listBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, pageSize, valid := extractPageParams(query)
	if !valid {
		responseJSON(w, http.StatusBadRequest, book.ErrResponseQueryPageInvalid)
		return
	}

	params := book.ListBooksRequest{
		Filters: book.ListBooksFilters{
			Search:   query.Get("search"),
			Category: query.Get("category"),
			Author:   query.Get("author"),
			Status:   query.Get("status"),
		},
		Page:     page,
		PageSize: pageSize,
	}

	pagedBooks, err := h.bookService.ListBooks(r.Context(), params)
	if err != nil {
		handleError(err, w)
		return
	}

	responseJSON(w, http.StatusOK, pagedBooksToResponse(pagedBooks))
}

/* Decodes the book entry from json or from a multipart form, saving the
bookImage file when one was sent. */
func (h *BookHandler) decodeBookEntry(w http.ResponseWriter, r *http.Request) (BookEntry, string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return h.decodeMultipartBookEntry(w, r)
	}

	var bookEntry BookEntry
	err := json.NewDecoder(r.Body).Decode(&bookEntry)
	if err != nil {
		log.Println(err)
		errR := book.ErrResponse{
			Code:    book.ErrResponseEntryInvalidJSON.Code,
			Message: book.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return BookEntry{}, "", err
	}

	return bookEntry, "", nil
}

func (h *BookHandler) decodeMultipartBookEntry(w http.ResponseWriter, r *http.Request) (BookEntry, string, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		log.Println(err)
		responseJSON(w, http.StatusBadRequest, book.ErrResponseEntryInvalidMultipart)
		return BookEntry{}, "", err
	}

	bookEntry := BookEntry{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Category:    r.FormValue("category"),
		ISBN:        r.FormValue("isbn"),
		Description: r.FormValue("description"),
	}

	if raw := r.FormValue("totalCopies"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			log.Println(err)
			responseJSON(w, http.StatusBadRequest, book.ErrResponseEntryInvalidMultipart)
			return BookEntry{}, "", err
		}
		bookEntry.TotalCopies = &value
	}
	if raw := r.FormValue("availableCopies"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			log.Println(err)
			responseJSON(w, http.StatusBadRequest, book.ErrResponseEntryInvalidMultipart)
			return BookEntry{}, "", err
		}
		bookEntry.AvailableCopies = &value
	}

	file, header, err := r.FormFile("bookImage")
	if err == http.ErrMissingFile {
		return bookEntry, "", nil
	}
	if err != nil {
		log.Println(err)
		responseJSON(w, http.StatusBadRequest, book.ErrResponseEntryInvalidMultipart)
		return BookEntry{}, "", err
	}
	defer file.Close()

	coverPath, err := h.covers.Save(file, header.Filename)
	if err != nil {
		log.Println(err)
		responseJSON(w, http.StatusInternalServerError, book.ErrResponseInternalError)
		return BookEntry{}, "", err
	}

	return bookEntry, coverPath, nil
}

/* Isolates the ID from the URL. */
func isolateId(w http.ResponseWriter, r *http.Request) (id uuid.UUID, err error) {
	id, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		log.Println(err)
		responseJSON(w, http.StatusBadRequest, book.ErrResponseIdInvalidFormat)
		return id, err
	}
	return id, nil
}

func extractPageParams(query url.Values) (page, pageSize int, valid bool) {
	page = pageDefault
	if pageStr := query.Get("page"); pageStr != "" {
		var err error
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, false
		}
	}

	pageSize = pageSizeDefault
	if limitStr := query.Get("limit"); limitStr != "" {
		var err error
		pageSize, err = strconv.Atoi(limitStr)
		if err != nil || pageSize < 1 || pageSize > pageSizeMax {
			return 0, 0, false
		}
	}

	return page, pageSize, true
}

type BookResponse struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Category        string     `json:"category"`
	ISBN            string     `json:"isbn"`
	Description     string     `json:"description,omitempty"`
	BookImage       string     `json:"bookImage,omitempty"`
	TotalCopies     int        `json:"totalCopies"`
	AvailableCopies int        `json:"availableCopies"`
	Status          string     `json:"status"`
	Borrower        *uuid.UUID `json:"borrower,omitempty"`
	BorrowedAt      *time.Time `json:"borrowedAt,omitempty"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
}

/* Copies the fields of a book object to an http layer struct with json tags. */
func bookToResponse(b book.Book) BookResponse {
	return BookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Category:        b.Category,
		ISBN:            b.ISBN,
		Description:     b.Description,
		BookImage:       b.CoverPath,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Status:          b.Status,
		Borrower:        b.BorrowerID,
		BorrowedAt:      b.BorrowedAt,
		DueDate:         b.DueDate,
	}
}

type PagedBooksResponse struct {
	TotalBooks  int            `json:"totalBooks"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	Books       []BookResponse `json:"books"`
}

func pagedBooksToResponse(paged book.PagedBooks) PagedBooksResponse {
	books := []BookResponse{}
	for _, b := range paged.Results {
		books = append(books, bookToResponse(b))
	}
	return PagedBooksResponse{
		TotalBooks:  paged.ItemsTotal,
		CurrentPage: paged.PageCurrent,
		TotalPages:  paged.PageTotal,
		Books:       books,
	}
}

/* Maps a service error to the http status code of its taxonomy class. */
func handleError(err error, w http.ResponseWriter) {
	log.Println(err)

	switch {
	case errors.Is(err, book.ErrResponseBookNotFound),
		errors.Is(err, book.ErrResponseUserNotFound):
		responseJSON(w, http.StatusNotFound, unwrapResponse(err))
	case errors.Is(err, book.ErrResponseBookEntryBlankFields),
		errors.Is(err, book.ErrResponseEntryInvalidJSON),
		errors.Is(err, book.ErrResponseIdInvalidFormat),
		errors.Is(err, book.ErrResponseQueryPageInvalid),
		errors.Is(err, book.ErrResponseCopiesInvalid),
		errors.Is(err, book.ErrResponseBookUnavailable),
		errors.Is(err, book.ErrResponseAlreadyBorrowed),
		errors.Is(err, book.ErrResponseNotBorrowedByUser),
		errors.Is(err, book.ErrResponseEntryInvalidMultipart):
		responseJSON(w, http.StatusBadRequest, unwrapResponse(err))
	default:
		responseJSON(w, http.StatusInternalServerError, book.ErrResponseInternalError)
	}
}

/* Recovers the taxonomy value from a wrapped error, so the response body
carries the stable code and message. */
func unwrapResponse(err error) book.ErrResponse {
	var errR book.ErrResponse
	if errors.As(err, &errR) {
		return errR
	}
	return book.ErrResponse{Code: 0, Message: err.Error()}
}

func responseJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Println(err)
	}
}
