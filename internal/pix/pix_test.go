package pix

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

func testBuilder() *Builder {
	return &Builder{
		Key:          "mediador@esquilo.gg",
		MerchantName: "Esquilo Aposta",
		MerchantCity: "Sao Paulo",
	}
}

func TestBuildPayload_Structure(t *testing.T) {
	b := testBuilder()

	payload, err := b.BuildPayload(decimal.NewFromFloat(10.00), "Aposta ABC123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(payload, "00020126360014br.gov.bcb.pix") {
		t.Errorf("payload missing fixed header: %s", payload)
	}
	if !strings.Contains(payload, fmt.Sprintf("0136%02d%s", len(b.Key), b.Key)) {
		t.Errorf("payload missing key segment: %s", payload)
	}
	if !strings.Contains(payload, "5204Esquilo Aposta") {
		t.Errorf("payload missing merchant name segment: %s", payload)
	}
	if !strings.Contains(payload, "0509Sao Paulo") {
		t.Errorf("payload missing city segment: %s", payload)
	}
	// 10.00 → "1000", length-prefixed under tag 54.
	if !strings.Contains(payload, "54041000") {
		t.Errorf("payload missing amount segment: %s", payload)
	}
	if !strings.Contains(payload, "Aposta ABC123") {
		t.Errorf("payload missing description: %s", payload)
	}
}

func TestBuildPayload_ChecksumTrailer(t *testing.T) {
	b := testBuilder()

	payload, err := b.BuildPayload(decimal.NewFromFloat(2.50), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Trailer is the literal tag "63" followed by 4 uppercase hex digits,
	// and the digits must match a recomputation over the same base.
	if len(payload) < 6 {
		t.Fatalf("payload too short: %s", payload)
	}
	base := payload[:len(payload)-4]
	suffix := payload[len(payload)-4:]

	if !strings.HasSuffix(base, "63") {
		t.Errorf("expected checksum tag 63 before trailer, got %s", payload)
	}
	want := fmt.Sprintf("%04X", CRC16(base+"0000"))
	if suffix != want {
		t.Errorf("checksum mismatch: got %s, want %s", suffix, want)
	}
	for _, r := range suffix {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			t.Errorf("checksum contains non-hex rune %q", r)
		}
	}
}

func TestBuildPayload_OmitsOptionalSegments(t *testing.T) {
	b := testBuilder()

	payload, err := b.BuildPayload(decimal.Zero, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Strip the checksum digits so a coincidental hex pattern cannot match.
	if strings.Contains(payload[:len(payload)-4], "5404") {
		t.Errorf("zero amount should omit the amount segment: %s", payload)
	}

	// Negative amounts are treated like zero.
	payload, err = b.BuildPayload(decimal.NewFromInt(-5), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(payload[:len(payload)-4], "5403500") {
		t.Errorf("negative amount should omit the amount segment: %s", payload)
	}
}

func TestBuildPayload_TruncatesMerchantName(t *testing.T) {
	b := testBuilder()
	b.MerchantName = "A Very Long Organization Display Name"

	payload, err := b.BuildPayload(decimal.NewFromInt(1), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(payload, "5204"+b.MerchantName[:25]) {
		t.Errorf("merchant name should be capped at 25 chars: %s", payload)
	}
	if strings.Contains(payload, b.MerchantName) {
		t.Errorf("full merchant name should not survive truncation: %s", payload)
	}
}

func TestBuildPayload_TruncatesMultibyteNameByRunes(t *testing.T) {
	b := testBuilder()
	// 26 two-byte runes; a byte-wise cut at 25 would split one in half.
	b.MerchantName = strings.Repeat("ç", 26)

	payload, err := b.BuildPayload(decimal.NewFromInt(1), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !utf8.ValidString(payload) {
		t.Fatalf("payload contains invalid UTF-8: %q", payload)
	}
	want := "5204" + strings.Repeat("ç", 25)
	if !strings.Contains(payload, want) {
		t.Errorf("expected 25-rune merchant name, got: %s", payload)
	}
	if strings.Contains(payload, b.MerchantName) {
		t.Errorf("full merchant name should not survive truncation: %s", payload)
	}
}

func TestBuildPayload_MissingKey(t *testing.T) {
	b := &Builder{MerchantName: "X", MerchantCity: "Y"}

	_, err := b.BuildPayload(decimal.NewFromInt(1), "desc")
	if err != ErrMissingKey {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestCRC16_Deterministic(t *testing.T) {
	input := "00020126360014br.gov.bcb.pix"

	first := CRC16(input)
	second := CRC16(input)
	if first != second {
		t.Errorf("CRC16 not deterministic: %04X vs %04X", first, second)
	}
}

func TestCRC16_InputSensitivity(t *testing.T) {
	a := CRC16("00020126360014br.gov.bcb.pix")
	b := CRC16("00020126360014br.gov.bcb.piy")
	if a == b {
		t.Error("single-byte change should alter the checksum")
	}
	if CRC16("") != 0xFFFF {
		t.Errorf("empty input should leave the initial register, got %04X", CRC16(""))
	}
}
