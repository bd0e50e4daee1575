package main

import (
	"net/url"
	"strings"
)

var (
	transactionIDParams = []string{"transactionId", "transaccionId", "transaction_id"}
	paymentMethodParams = []string{"metodo", "paymentMethod", "method"}
)

// ResolveWaitInput merges the waiting page's URL query with the state handed
// over by the checkout page. Navigation state wins where both carry a value.
func ResolveWaitInput(query url.Values, state NavigationState) WaitInput {
	in := WaitInput{
		TransactionID:     strings.TrimSpace(state.TransactionID),
		FallbackBookingID: state.BookingID,
		BookingDetails:    state.BookingDetails,
	}
	if in.TransactionID == "" {
		in.TransactionID = strings.TrimSpace(firstParam(query, transactionIDParams))
	}

	method := state.PaymentMethod
	if method == "" {
		method = firstParam(query, paymentMethodParams)
	}
	in.PaymentMethod = ParsePaymentMethod(method)

	in.QRImage = state.QRImage
	if in.QRImage == "" {
		in.QRImage = decodeQRParam(query.Get("qr"))
	}
	return in
}

func firstParam(query url.Values, names []string) string {
	for _, name := range names {
		if v := query.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// decodeQRParam undoes the extra encodeURIComponent the checkout page applies
// to QR data URLs. PathUnescape keeps '+' intact, which base64 payloads need.
func decodeQRParam(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}
