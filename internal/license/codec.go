package license

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode"

	apperrors "sellerlicense/internal/errors"
)

// Export encodes list as a transfer string. The base64 format wraps the
// JSON array so it survives copy and paste through chat apps.
func Export(list []LicenseRecord, format ExportFormat) (string, error) {
	if list == nil {
		list = []LicenseRecord{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", apperrors.NewStorageError("failed to encode license catalog", err)
	}

	switch format {
	case ExportFormatJSON:
		return string(data), nil
	case ExportFormatBase64, "":
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", apperrors.NewValidationError("unknown export format " + string(format))
	}
}

// Decode parses a transfer string into raw entries. It accepts base64
// (standard or URL alphabet, whitespace ignored), a JSON array, or a JSON
// object carrying a "licenses" array. Array elements that are not
// objects are skipped.
func Decode(text string) ([]RawEntry, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, apperrors.NewDecodeError("import text is empty", nil)
	}

	data := []byte(trimmed)
	if trimmed[0] != '[' && trimmed[0] != '{' {
		decoded, err := decodeBase64(trimmed)
		if err != nil {
			return nil, apperrors.NewDecodeError("import text is not a valid license export", err)
		}
		data = bytes.TrimSpace(decoded)
	}

	entries, err := decodeJSON(data)
	if err != nil {
		return nil, apperrors.NewDecodeError("import text is not a valid license export", err)
	}
	return entries, nil
}

func decodeBase64(text string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		decoded, err := enc.DecodeString(compact)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func decodeJSON(data []byte) ([]RawEntry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapper struct {
			Licenses []json.RawMessage `json:"licenses"`
		}
		if werr := json.Unmarshal(data, &wrapper); werr != nil || wrapper.Licenses == nil {
			return nil, err
		}
		items = wrapper.Licenses
	}

	entries := make([]RawEntry, 0, len(items))
	for _, item := range items {
		var entry RawEntry
		if err := json.Unmarshal(item, &entry); err != nil || entry == nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
