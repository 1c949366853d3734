// Package upload validates customer files and stores them in blob storage.
package upload

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Category groups accepted extensions under one size ceiling.
type Category string

const (
	Category3D       Category = "3d"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryArchive  Category = "archive"
)

const mib = 1 << 20

var (
	// ErrUnsupportedType is returned for extensions outside the category table.
	ErrUnsupportedType = errors.New("type de fichier non supporté")
	// ErrTooLarge is matched by every *SizeError.
	ErrTooLarge = errors.New("fichier trop volumineux")
	// ErrEmpty is returned for zero-byte files.
	ErrEmpty = errors.New("fichier vide")
)

// Rule is one row of the category table.
type Rule struct {
	Category   Category
	MaxSize    int64
	Extensions []string
}

var rules = []Rule{
	{Category3D, 100 * mib, []string{"stl", "obj", "3mf", "step", "stp", "iges", "igs", "ply", "amf", "gltf", "glb", "fbx"}},
	{CategoryImage, 10 * mib, []string{"jpg", "jpeg", "png", "webp", "gif", "heic"}},
	{CategoryDocument, 20 * mib, []string{"pdf", "doc", "docx", "txt", "odt"}},
	{CategoryArchive, 50 * mib, []string{"zip", "rar", "7z"}},
}

var byExtension = func() map[string]Rule {
	m := make(map[string]Rule)
	for _, r := range rules {
		for _, ext := range r.Extensions {
			m[ext] = r
		}
	}
	return m
}()

var contentTypes = map[string]string{
	"stl":  "model/stl",
	"obj":  "model/obj",
	"3mf":  "model/3mf",
	"step": "model/step",
	"stp":  "model/step",
	"iges": "model/iges",
	"igs":  "model/iges",
	"ply":  "application/octet-stream",
	"amf":  "application/x-amf",
	"gltf": "model/gltf+json",
	"glb":  "model/gltf-binary",
	"fbx":  "application/octet-stream",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"heic": "image/heic",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":  "text/plain; charset=utf-8",
	"odt":  "application/vnd.oasis.opendocument.text",
	"zip":  "application/zip",
	"rar":  "application/vnd.rar",
	"7z":   "application/x-7z-compressed",
}

// SizeError reports a file above its category ceiling.
type SizeError struct {
	Category Category
	Limit    int64
	Size     int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s (maximum %d Mo pour la catégorie %s)", ErrTooLarge.Error(), e.Limit/mib, e.Category)
}

func (e *SizeError) Unwrap() error { return ErrTooLarge }

// Rules returns a copy of the category table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Extensions = append([]string(nil), r.Extensions...)
		out[i] = r
	}
	return out
}

// Extension returns the lowercase extension without the dot.
func Extension(fileName string) string {
	ext := path.Ext(strings.TrimSpace(fileName))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Classify looks up the rule for fileName.
func Classify(fileName string) (Rule, bool) {
	r, ok := byExtension[Extension(fileName)]
	return r, ok
}

// Validate returns the category of an acceptable file. Unknown extensions are rejected
// whatever their size.
func Validate(fileName string, size int64) (Category, error) {
	rule, ok := Classify(fileName)
	if !ok {
		return "", ErrUnsupportedType
	}
	if size <= 0 {
		return rule.Category, ErrEmpty
	}
	if size > rule.MaxSize {
		return rule.Category, &SizeError{Category: rule.Category, Limit: rule.MaxSize, Size: size}
	}
	return rule.Category, nil
}

// ContentType returns the stored media type for fileName, preferring the table over the
// client-declared type.
func ContentType(fileName, declared string) string {
	if ct, ok := contentTypes[Extension(fileName)]; ok {
		return ct
	}
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	return "application/octet-stream"
}
