package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"lms/config"

	"github.com/go-resty/resty/v2"
)

// UploadFile pushes bytes to the blob store and returns the public URL.
// Returns an empty URL (not an error) when no token is configured, so local
// setups degrade to placeholder URLs instead of failing the caller.
func UploadFile(fileData []byte, filename string, contentType string) (string, error) {
	if config.AppConfig.BlobToken == "" {
		log.Printf("Blob token not configured. File upload skipped: %s", filename)
		return "", nil
	}

	client := resty.New().SetTimeout(30 * time.Second)
	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+config.AppConfig.BlobToken).
		SetHeader("Content-Type", contentType).
		SetHeader("x-content-type", contentType).
		SetBody(fileData).
		Put(config.AppConfig.BlobBaseURL + "/" + filename)
	if err != nil {
		log.Printf("Failed to upload file %s: %v", filename, err)
		return "", err
	}
	if resp.StatusCode() >= 400 {
		log.Printf("Blob store rejected %s: %d %s", filename, resp.StatusCode(), resp.String())
		return "", fmt.Errorf("blob store returned status %d", resp.StatusCode())
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		log.Printf("Invalid blob store response for %s: %v", filename, err)
		return "", err
	}
	return result.URL, nil
}

// SignedDownloadURL wraps a stored URL with an expiry timestamp and an HMAC
// so the frontend can hand out time-limited download links.
func SignedDownloadURL(fileURL string, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	mac := hmac.New(sha256.New, []byte(config.AppConfig.JWTKey))
	fmt.Fprintf(mac, "%s:%d", fileURL, expires)
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s?expires=%d&sig=%s", fileURL, expires, sig)
}

// VerifySignedDownloadURL checks the expiry and signature produced by
// SignedDownloadURL.
func VerifySignedDownloadURL(fileURL string, expires string, sig string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return false
	}
	mac := hmac.New(sha256.New, []byte(config.AppConfig.JWTKey))
	fmt.Fprintf(mac, "%s:%d", fileURL, exp)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
