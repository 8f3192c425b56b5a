package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/Dan9191/bank-cards/internal/models"
)

// CardNumberLength is the length of every issued card number.
const CardNumberLength = 16

// GenerateCardNumber generates a Luhn-valid card number with the specified prefix
func GenerateCardNumber(prefix string) (string, error) {
	if len(prefix) >= CardNumberLength {
		return "", fmt.Errorf("invalid card number prefix length: %d", len(prefix))
	}
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("card number prefix must be numeric: %q", prefix)
		}
	}

	// Generate random digits, leaving room for the check digit
	digits := make([]byte, CardNumberLength-len(prefix)-1)
	if _, err := rand.Read(digits); err != nil {
		return "", fmt.Errorf("failed to generate random digits: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	for _, b := range digits {
		builder.WriteByte(b%10 + '0')
	}
	payload := builder.String()

	return payload + strconv.Itoa(luhnCheckDigit(payload)), nil
}

// luhnCheckDigit returns the digit that makes payload+digit pass the Luhn check
func luhnCheckDigit(payload string) int {
	sum := 0
	double := true
	for i := len(payload) - 1; i >= 0; i-- {
		n := int(payload[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return (10 - sum%10) % 10
}

// IsValidCardNumber checks length, digits and the Luhn checksum
func IsValidCardNumber(number string) bool {
	number = strings.ReplaceAll(number, " ", "")
	if len(number) != CardNumberLength {
		return false
	}
	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if alternate {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alternate = !alternate
	}
	return sum%10 == 0
}

// MaskCardNumber keeps only the last four digits: **** **** **** 1234
func MaskCardNumber(number string) string {
	number = strings.ReplaceAll(number, " ", "")
	if len(number) < 4 {
		return "****"
	}
	return "**** **** **** " + number[len(number)-4:]
}

// ParseExpiry parses an MM/YY expiry into the last day of that month
func ParseExpiry(expiry string) (time.Time, error) {
	t, err := time.Parse("01/06", strings.TrimSpace(expiry))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q, expected MM/YY", expiry)
	}
	return models.EndOfMonth(t.Year(), t.Month()), nil
}

// FormatExpiry renders an expiry date as MM/YY
func FormatExpiry(expiry time.Time) string {
	return fmt.Sprintf("%02d/%02d", int(expiry.Month()), expiry.Year()%100)
}

// CardCipher encrypts full card numbers and fingerprints them for uniqueness checks.
// Both keys are derived from one configured secret.
type CardCipher struct {
	encKey []byte
	macKey []byte
}

// NewCardCipher derives the encryption and HMAC keys from secret
func NewCardCipher(secret string) (*CardCipher, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("encryption secret must be at least 16 characters, got %d", len(secret))
	}

	encKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("card-number-encryption")), encKey); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("card-number-hmac")), macKey); err != nil {
		return nil, fmt.Errorf("failed to derive hmac key: %w", err)
	}

	return &CardCipher{encKey: encKey, macKey: macKey}, nil
}

// Encrypt seals a card number with XChaCha20-Poly1305; the random nonce is prepended
func (c *CardCipher) Encrypt(number string) (string, error) {
	if len(number) == 0 {
		return "", fmt.Errorf("input data is empty")
	}

	aead, err := chacha20poly1305.NewX(c.encKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(number)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(number), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt
func (c *CardCipher) Decrypt(encrypted string) (string, error) {
	if len(encrypted) == 0 {
		return "", fmt.Errorf("encrypted data is empty")
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.encKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt card number: %w", err)
	}
	return string(plaintext), nil
}

// HMAC generates a deterministic fingerprint of a card number
func (c *CardCipher) HMAC(number string) string {
	h := hmac.New(sha256.New, c.macKey)
	h.Write([]byte(number))
	return hex.EncodeToString(h.Sum(nil))
}
