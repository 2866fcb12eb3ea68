package covers_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/library-service/cmd/api/covers"
	"github.com/matryer/is"
)

func tempFile(t *testing.T, content string) *os.File {
	t.Helper()
	file, err := os.CreateTemp(t.TempDir(), "upload-*.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { file.Close() })
	return file
}

func TestSave(t *testing.T) {

	t.Run("writes the upload under an uuid-prefixed name", func(t *testing.T) {
		is := is.New(t)
		dir := t.TempDir()
		store, err := covers.NewStore(dir)
		is.NoErr(err)

		upload := tempFile(t, "not really a png")

		path, err := store.Save(upload, "cover.png")
		is.NoErr(err)
		is.True(strings.HasPrefix(path, dir))
		is.True(strings.HasSuffix(path, "-cover.png"))

		content, err := os.ReadFile(path)
		is.NoErr(err)
		is.Equal(string(content), "not really a png")
	})

	t.Run("strips any directory part from the upload name", func(t *testing.T) {
		is := is.New(t)
		dir := t.TempDir()
		store, err := covers.NewStore(dir)
		is.NoErr(err)

		upload := tempFile(t, "content")

		path, err := store.Save(upload, "../../etc/cover.png")
		is.NoErr(err)
		is.Equal(filepath.Dir(path), dir)
	})
}

func TestRemove(t *testing.T) {

	t.Run("removes a previously saved cover", func(t *testing.T) {
		is := is.New(t)
		store, err := covers.NewStore(t.TempDir())
		is.NoErr(err)

		path, err := store.Save(tempFile(t, "content"), "cover.png")
		is.NoErr(err)

		is.NoErr(store.Remove(path))

		_, err = os.Stat(path)
		is.True(os.IsNotExist(err))
	})

	t.Run("refuses a path outside the store directory", func(t *testing.T) {
		is := is.New(t)
		store, err := covers.NewStore(t.TempDir())
		is.NoErr(err)

		outside := filepath.Join(t.TempDir(), "not-a-cover.png")
		is.True(store.Remove(outside) != nil)
	})
}
