package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	uploadPrefix    = "uploads"
	maxFileNameRune = 96
	fallbackName    = "fichier"
)

// UploadObjectPath composes uploads/YYYY/MM/<id>-<normalized file name>.
func UploadObjectPath(at time.Time, id, fileName string) (string, error) {
	id, err := validateSegment("id", id)
	if err != nil {
		return "", err
	}
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s-%s", uploadPrefix, at.Year(), int(at.Month()), id, NormalizeFileName(fileName)), nil
}

// NormalizeFileName strips accents, lowercases and replaces anything outside [a-z0-9._-] with
// dashes so the name is safe both as an object key and inside a URL. The extension survives
// truncation.
func NormalizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err == nil {
		name = stripped
	}

	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	cleaned := strings.NewReplacer("-.", ".", ".-", ".").Replace(b.String())
	for strings.Contains(cleaned, "..") {
		cleaned = strings.ReplaceAll(cleaned, "..", ".")
	}
	cleaned = strings.Trim(cleaned, "-.")

	ext := path.Ext(cleaned)
	base := strings.TrimSuffix(cleaned, ext)
	if base == "" {
		base = fallbackName
	}
	if budget := maxFileNameRune - len(ext); len(base) > budget {
		base = strings.TrimRight(base[:budget], "-")
	}
	return base + ext
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	return value, nil
}
