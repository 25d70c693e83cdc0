package utils

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"

	"lms/config"
	"lms/models"
)

// ipayFieldOrder is the exact field order iPay uses to build the signed
// datastring, both for outbound payment URLs and inbound callbacks.
var ipayFieldOrder = []string{
	"live", "oid", "inv", "ttl", "tel", "eml", "vid",
	"curr", "p1", "p2", "p3", "p4", "cbk", "cst", "crl",
}

const ipayBaseURL = "https://payments.ipayafrica.com/v3/ke"

// ipayDatastring concatenates the callback fields in gateway order. Missing
// fields contribute empty strings, matching the gateway's own hashing.
func ipayDatastring(fields map[string]string) string {
	var sb strings.Builder
	for _, key := range ipayFieldOrder {
		sb.WriteString(fields[key])
	}
	return sb.String()
}

func hmacSHA1Hex(key string, data string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacSHA256Hex(key string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackSignature validates the hsh field of an iPay callback.
//
// In demo mode (vendor id "demo") no real signature exists; the gateway is
// only checked for structural plausibility (a status field). This is NOT
// production behavior and is logged as such at startup.
func VerifyCallbackSignature(callbackData map[string]string) bool {
	if config.AppConfig.IPayVendorID == "demo" {
		_, ok := callbackData["status"]
		return ok
	}

	receivedHash := strings.ToLower(callbackData["hsh"])
	if receivedHash == "" {
		return false
	}

	computed := hmacSHA1Hex(config.AppConfig.IPaySecretKey, ipayDatastring(callbackData))
	return hmac.Equal([]byte(receivedHash), []byte(computed))
}

// GeneratePaymentURL builds the signed iPay redirect URL for a pending payment
func GeneratePaymentURL(payment *models.Payment, user *models.User) string {
	isDemo := config.AppConfig.IPayVendorID == "demo"

	liveMode := "1"
	vendorID := config.AppConfig.IPayVendorID
	hashKey := config.AppConfig.IPaySecretKey
	if isDemo {
		liveMode = "0"
		vendorID = "demo"
		hashKey = "demoCHANGED"
	}

	fields := map[string]string{
		"live": liveMode,
		"oid":  fmt.Sprintf("%d", payment.ID),
		"inv":  fmt.Sprintf("%d", payment.ID),
		"ttl":  fmt.Sprintf("%d", int(payment.Amount)),
		"tel":  normalizePhone(user.Mobile),
		"eml":  user.Email,
		"vid":  vendorID,
		"curr": payment.Currency,
		"p1":   fmt.Sprintf("%d", payment.ID),
		"p2":   fmt.Sprintf("%d", user.ID),
		"p3":   "",
		"p4":   "",
		"cbk":  config.AppConfig.BackendURL + "/enrollment/callback",
		"cst":  "1",
		"crl":  "2",
	}
	fields["hsh"] = hmacSHA1Hex(hashKey, ipayDatastring(fields))

	query := url.Values{}
	for k, v := range fields {
		query.Set(k, v)
	}

	log.Printf("Payment URL generated for payment %d, amount: %s", payment.ID, fields["ttl"])
	return ipayBaseURL + "?" + query.Encode()
}

// normalizePhone strips non-digits and forces the 254 country prefix
func normalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "0"):
		return "254" + digits[1:]
	case strings.HasPrefix(digits, "254"):
		return digits
	default:
		return "254" + digits
	}
}

// VerifyFormBuilderSignature validates the raw-body HMAC-SHA256 signature of a
// 123FormBuilder webhook. Returns false for empty signature or secret; the
// caller decides how an unconfigured secret is treated.
func VerifyFormBuilderSignature(payload []byte, signature string, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	expected := hmacSHA256Hex(secret, payload)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
