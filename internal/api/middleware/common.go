package middleware

import (
	"net/http"

	"github.com/bmstu-itstech/matchorch/pkg/errors"
)

// writeError пишет ошибку в ответ в том же формате, что и handlers.writeError.
func writeError(w http.ResponseWriter, err error) {
	appErr := errors.ToAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	_, _ = w.Write([]byte(`{"error":"` + appErr.Message + `"}`))
}
