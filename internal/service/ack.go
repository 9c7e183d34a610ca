package service

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/coursedesk/payment-service/internal/models"
)

// Redirect error codes surfaced to the browser on the return path.
const (
	RedirectErrMissingData      = "missing_data"
	RedirectErrInvalidSignature = "invalid_signature"
	RedirectErrDecryptFailed    = "decrypt_failed"
	RedirectErrMissingOrderNo   = "missing_order_no"
	RedirectErrUnknown          = "unknown"
)

// Acknowledge maps a reconciliation outcome to the gateway's retry contract:
// only a transient rejection invites a retry, everything else is acknowledged
// so the retry storm stops.
func Acknowledge(kind models.OutcomeKind) (int, string) {
	if kind == models.RejectedTransient {
		return http.StatusInternalServerError, "server error"
	}
	return http.StatusOK, "OK"
}

// SuccessRedirect returns the browser destination after a verified successful
// return callback, dispatched on the order-number family.
func SuccessRedirect(orderNo string) string {
	if regID, ok := models.CourseRegistrationID(orderNo); ok {
		return "/course-2026-payment-result?payment=success&id=" + strconv.FormatInt(regID, 10)
	}
	return "/payment-result?payment=success&order=" + url.QueryEscape(orderNo)
}

// FailureRedirect returns the browser destination for any failed return
// callback. The course result page keys on the registration id alone; the
// general page carries an error code distinguishing the failure reason.
func FailureRedirect(orderNo, code string) string {
	if regID, ok := models.CourseRegistrationID(orderNo); ok {
		return "/course-2026-payment-result?payment=failed&id=" + strconv.FormatInt(regID, 10)
	}
	target := "/payment-result?payment=failed"
	if orderNo != "" {
		target += "&order=" + url.QueryEscape(orderNo)
	}
	return target + "&error=" + code
}
