package book

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

// Is matches by code, so wrapped responses carrying extra message context
// still compare equal to the catalog values below.
func (e ErrResponse) Is(target error) bool {
	t, ok := target.(ErrResponse)
	return ok && t.Code == e.Code
}

var ErrResponseBookEntryBlankFields = ErrResponse{100, "all the required fields - title, author, category, isbn and totalCopies - must be filled correctly."}
var ErrResponseBookNotFound = ErrResponse{101, "book not found"}
var ErrResponseEntryInvalidJSON = ErrResponse{102, "invalid json request."}
var ErrResponseIdInvalidFormat = ErrResponse{103, "the endpoint is not a valid format ID. Must be /books/{uuid}"}
var ErrResponseQueryPageInvalid = ErrResponse{104, "query parameter 'page' must be an int starting in 1. 'limit' must be an int between 1 and 100."}
var ErrResponseCopiesInvalid = ErrResponse{105, "availableCopies must be an int between 0 and totalCopies."}
var ErrResponseBookUnavailable = ErrResponse{106, "book is not available for borrowing"}
var ErrResponseAlreadyBorrowed = ErrResponse{107, "book is already borrowed by this user"}
var ErrResponseNotBorrowedByUser = ErrResponse{108, "book is not borrowed by this user"}
var ErrResponseUserNotFound = ErrResponse{109, "user not found"}
var ErrResponseEntryInvalidMultipart = ErrResponse{110, "invalid multipart form request."}
var ErrResponseFromRepository = ErrResponse{111, "error from repository: "}
var ErrResponseInternalError = ErrResponse{112, "internal server error."}
