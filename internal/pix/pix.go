// Package pix builds Pix "copia e cola" payment payloads in the EMV
// merchant-presented QR format (BR Code). The output string is what a
// payment app scans; rendering it into a QR image is the caller's job.
//
// The payload is a sequence of tag-length-value segments, each written as
// a 2-digit tag, a 2-digit length, and the value, terminated by a CRC16
// checksum segment under tag 63.
package pix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingKey is returned when no Pix key is configured on the builder.
var ErrMissingKey = errors.New("pix: key not configured")

// Builder holds the recipient identity baked into every payload.
type Builder struct {
	// Key is the recipient's Pix key (CPF, CNPJ, email or phone).
	// The format is not validated here; banks accept any registered key.
	Key string

	// MerchantName is the recipient display name, truncated to 25 chars.
	MerchantName string

	// MerchantCity is the recipient city.
	MerchantCity string
}

// BuildPayload assembles the EMV payload for the given amount and free-text
// description. The amount segment is omitted when amount is not positive;
// the description segment is omitted when description is empty.
func (b *Builder) BuildPayload(amount decimal.Decimal, description string) (string, error) {
	if b.Key == "" {
		return "", ErrMissingKey
	}

	// Fixed header: payload format indicator + merchant account info
	// opening with the br.gov.bcb.pix GUI.
	payload := "00020126360014br.gov.bcb.pix"

	// Pix key, length-prefixed inside the merchant account info block.
	payload += fmt.Sprintf("0136%02d%s", len(b.Key), b.Key)

	// Merchant name (tag 52 wrapping a 5204 block, name capped at 25
	// characters; slicing runes keeps a multibyte name valid UTF-8).
	name := b.MerchantName
	if r := []rune(name); len(r) > 25 {
		name = string(r[:25])
	}
	merchantInfo := "5204" + name
	payload += fmt.Sprintf("52%02d%s", len(merchantInfo), merchantInfo)

	// Merchant city (tag 50 wrapping a nested 05 block).
	cityInfo := fmt.Sprintf("05%02d%s", len(b.MerchantCity), b.MerchantCity)
	payload += fmt.Sprintf("50%02d%s", len(cityInfo), cityInfo)

	// Transaction amount (tag 54): two decimal places, dot removed.
	// "10.00" → "1000". Omitted entirely for zero or negative amounts.
	if amount.IsPositive() {
		amountStr := strings.ReplaceAll(amount.StringFixed(2), ".", "")
		payload += fmt.Sprintf("54%02d%s", len(amountStr), amountStr)
	}

	// Description (tag 62 wrapping a nested 05 block).
	if description != "" {
		descInfo := fmt.Sprintf("05%02d%s", len(description), description)
		payload += fmt.Sprintf("62%02d%s", len(descInfo), descInfo)
	}

	// Checksum: tag 63, CRC computed over the payload including the
	// four-character placeholder that the checksum itself occupies.
	payload += "63"
	crc := CRC16(payload + "0000")
	payload += fmt.Sprintf("%04X", crc)

	return payload, nil
}

// CRC16 computes the CRC-16/CCITT-FALSE checksum used by the EMV QR spec:
// polynomial 0x1021, initial register 0xFFFF, no final XOR, over the UTF-8
// bytes of data.
func CRC16(data string) uint16 {
	crc := uint32(0xFFFF)

	for _, b := range []byte(data) {
		crc ^= uint32(b) << 8
		for i := 0; i < 8; i++ {
			crc <<= 1
			if crc&0x10000 != 0 {
				crc ^= 0x1021
			}
			crc &= 0xFFFF
		}
	}

	return uint16(crc)
}
