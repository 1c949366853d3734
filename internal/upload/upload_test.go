package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thobenayann/hexoprint-sub001/internal/platform/storage"
)

const mb = 1000 * 1000

func TestValidateCategories(t *testing.T) {
	cases := []struct {
		name     string
		size     int64
		category Category
		err      error
	}{
		{"part.STL", 50 * mb, Category3D, nil},
		{"part.stl", 150 * mb, Category3D, ErrTooLarge},
		{"part.exe", 1, "", ErrUnsupportedType},
		{"part.exe", 500 * mb, "", ErrUnsupportedType},
		{"noext", 10, "", ErrUnsupportedType},
		{"photo.HEIC", 9 * mib, CategoryImage, nil},
		{"photo.png", 11 * mib, CategoryImage, ErrTooLarge},
		{"devis.pdf", 20 * mib, CategoryDocument, nil},
		{"devis.pdf", 20*mib + 1, CategoryDocument, ErrTooLarge},
		{"pack.7z", 50 * mib, CategoryArchive, nil},
		{"vide.obj", 0, Category3D, ErrEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			category, err := Validate(tc.name, tc.size)
			assert.Equal(t, tc.category, category)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSizeErrorNamesLimit(t *testing.T) {
	_, err := Validate("part.stl", 150*mb)
	var sizeErr *SizeError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, int64(100*mib), sizeErr.Limit)
	assert.Equal(t, "fichier trop volumineux (maximum 100 Mo pour la catégorie 3d)", err.Error())
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "model/stl", ContentType("Part.STL", "application/octet-stream"))
	assert.Equal(t, "application/pdf", ContentType("a.pdf", ""))
	assert.Equal(t, "application/x-custom", ContentType("a.bin", "application/x-custom"))
	assert.Equal(t, "application/octet-stream", ContentType("a.bin", ""))
}

func TestRulesIsACopy(t *testing.T) {
	r := Rules()
	r[0].Extensions[0] = "exe"
	_, ok := Classify("x.stl")
	assert.True(t, ok)
}

type memoryStore struct {
	objects map[string][]byte
	opts    map[string]storage.PutOptions
	err     error
}

func (m *memoryStore) Put(_ context.Context, object string, body io.Reader, opts storage.PutOptions) (storage.Object, error) {
	if m.err != nil {
		return storage.Object{}, m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.Object{}, err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.opts = map[string]storage.PutOptions{}
	}
	m.objects[object] = data
	m.opts[object] = opts
	return storage.Object{Name: object, URL: "https://storage.googleapis.com/hexoprint/" + object, Size: int64(len(data))}, nil
}

func newService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(ServiceDeps{
		Store: store,
		Clock: func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func TestServiceSave(t *testing.T) {
	store := &memoryStore{}
	svc := newService(t, store)

	body := []byte("solid cube\nendsolid cube\n")
	res := svc.Save(context.Background(), File{Name: "Pièce Support.STL", Size: int64(len(body)), Body: bytes.NewReader(body)})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, Category3D, res.Category)
	assert.Equal(t, "model/stl", res.ContentType)
	assert.Equal(t, int64(len(body)), res.Size)
	assert.Regexp(t, regexp.MustCompile(`^uploads/2025/03/[0-9a-z]{26}-piece-support\.stl$`), res.Pathname)
	assert.True(t, strings.HasSuffix(res.URL, res.Pathname))
	require.NotNil(t, res.UploadedAt)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), *res.UploadedAt)

	assert.Equal(t, body, store.objects[res.Pathname])
	opts := store.opts[res.Pathname]
	assert.Equal(t, "Pièce Support.STL", opts.Metadata["originalName"])
	assert.Equal(t, "3d", opts.Metadata["category"])
}

func TestServiceRejectsWithoutStoring(t *testing.T) {
	store := &memoryStore{}
	svc := newService(t, store)

	res := svc.Save(context.Background(), File{Name: "part.exe", Size: 10, Body: strings.NewReader("MZ")})

	assert.False(t, res.Success)
	assert.Equal(t, "type de fichier non supporté", res.Error)
	assert.Empty(t, store.objects)
}

func TestServiceStoreFailure(t *testing.T) {
	svc := newService(t, &memoryStore{err: errors.New("bucket gone")})

	res := svc.Save(context.Background(), File{Name: "a.png", Size: 3, Body: strings.NewReader("png")})

	assert.False(t, res.Success)
	assert.Equal(t, "échec de l'envoi du fichier", res.Error)
	assert.Equal(t, CategoryImage, res.Category)
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(ServiceDeps{})
	assert.ErrorIs(t, err, ErrStoreMissing)
}
