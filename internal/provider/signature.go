package provider

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// Sign produces the wayforpay merchant signature: HMAC-MD5 over the
// semicolon-joined field values, hex encoded. The field order is fixed per
// message type and must match the gateway's documented order exactly.
func Sign(secret string, fields ...string) string {
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write([]byte(strings.Join(fields, ";")))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureEqual compares two hex signatures in constant time, tolerating
// case differences in the hex encoding.
func SignatureEqual(got, want string) bool {
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(strings.ToLower(want)))
}

// FormatAmount renders minor units as the canonical decimal string the
// gateway expects: no trailing zeros, no decimal point for whole amounts.
// 60000 -> "600", 60050 -> "600.5", 60055 -> "600.55".
func FormatAmount(minor int64) string {
	whole := minor / 100
	frac := minor % 100
	if frac < 0 {
		frac = -frac
	}
	switch {
	case frac == 0:
		return strconv.FormatInt(whole, 10)
	case frac%10 == 0:
		return strconv.FormatInt(whole, 10) + "." + strconv.FormatInt(frac/10, 10)
	default:
		return strconv.FormatInt(whole, 10) + "." + pad2(frac)
	}
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
