// Package export loads WhatsApp exports from a .zip archive, an extracted
// directory, or a single chat file, and organises them into the chat
// transcript plus the uploaded media set.
package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
)

// ErrNoChatFile is returned when an export contains no chat transcript.
var ErrNoChatFile = errors.New("no _chat.txt file found in export")

// ErrEntryTooLarge is returned for a zip entry above the extraction limit.
var ErrEntryTooLarge = errors.New("zip entry exceeds size limit")

// Limit extraction size to 1 GB per entry to prevent decompression bombs (G110).
var maxEntrySize int64 = 1 << 30

// Loader implements domain.ExportLoader.
type Loader struct{}

func (l *Loader) Load(exportPath string) (*domain.Bundle, error) {
	info, err := os.Stat(exportPath)
	if err != nil {
		return nil, fmt.Errorf("opening export: %w", err)
	}

	var files []file
	switch {
	case info.IsDir():
		files, err = readDir(exportPath)
	case strings.EqualFold(filepath.Ext(exportPath), ".zip"):
		files, err = readZip(exportPath)
	default:
		files, err = readChatWithSiblings(exportPath)
	}
	if err != nil {
		return nil, err
	}

	return organize(files)
}

// file is one export entry before organisation.
type file struct {
	name string
	open func() ([]byte, error)
	size int64
}

// organize picks the chat file and turns every other entry into media, in
// the order given. The chat file is the first entry whose name contains
// "_chat.txt", falling back to the first .txt entry.
func organize(files []file) (*domain.Bundle, error) {
	chatIdx := -1
	for i, f := range files {
		if strings.Contains(f.name, "_chat.txt") {
			chatIdx = i
			break
		}
	}
	if chatIdx < 0 {
		for i, f := range files {
			if strings.EqualFold(path.Ext(f.name), ".txt") {
				chatIdx = i
				break
			}
		}
	}
	if chatIdx < 0 {
		return nil, ErrNoChatFile
	}

	raw, err := files[chatIdx].open()
	if err != nil {
		return nil, fmt.Errorf("reading chat file %s: %w", files[chatIdx].name, err)
	}
	text, err := DecodeChat(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding chat file %s: %w", files[chatIdx].name, err)
	}

	media := make([]domain.MediaFile, 0, len(files)-1)
	for i, f := range files {
		if i == chatIdx {
			continue
		}
		media = append(media, &lazyFile{name: f.name, size: f.size, open: f.open})
	}

	return &domain.Bundle{
		ChatName: files[chatIdx].name,
		ChatText: text,
		Media:    domain.NewMediaSet(media...),
	}, nil
}

// DecodeChat decodes the chat bytes as UTF-8, honouring a UTF-8 or UTF-16
// byte order mark and stripping it.
func DecodeChat(raw []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func readDir(dir string) ([]file, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading export directory: %w", err)
	}

	var files []file
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, diskFile(filepath.Join(dir, e.Name()), info.Size()))
	}
	return files, nil
}

// readChatWithSiblings treats a bare chat file as the export and its
// directory as the media source.
func readChatWithSiblings(chatPath string) ([]file, error) {
	files, err := readDir(filepath.Dir(chatPath))
	if err != nil {
		return nil, err
	}

	name := filepath.Base(chatPath)
	for i, f := range files {
		if f.name == name {
			// Move the chosen chat file to the front so it wins organisation.
			chat := files[i]
			files = append(files[:i], files[i+1:]...)
			if !strings.Contains(name, "_chat.txt") {
				files = dropOtherChats(files)
			}
			return append([]file{chat}, files...), nil
		}
	}
	return nil, fmt.Errorf("chat file %s not found", chatPath)
}

// dropOtherChats removes sibling _chat.txt files that would otherwise take
// precedence over an explicitly named chat file.
func dropOtherChats(files []file) []file {
	out := files[:0]
	for _, f := range files {
		if !strings.Contains(f.name, "_chat.txt") {
			out = append(out, f)
		}
	}
	return out
}

func diskFile(p string, size int64) file {
	return file{
		name: filepath.Base(p),
		size: size,
		open: func() ([]byte, error) { return os.ReadFile(p) }, //nolint:gosec // path comes from the export the user selected
	}
}

func readZip(zipPath string) ([]file, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	defer r.Close()

	var files []file
	for _, f := range r.File {
		// Entries stay in memory under their base name; parent references
		// are still refused (G305).
		name := filepath.ToSlash(f.Name)
		if escapes(name) || f.FileInfo().IsDir() {
			continue
		}
		if strings.HasPrefix(path.Base(f.Name), "._") {
			continue // macOS resource forks
		}

		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		files = append(files, memFile(path.Base(name), data))
	}

	return files, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if f.UncompressedSize64 > uint64(maxEntrySize) {
		return nil, ErrEntryTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxEntrySize {
		return nil, ErrEntryTooLarge
	}
	return data, nil
}

// escapes reports whether a slash-separated entry name has a ".." segment.
func escapes(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func memFile(name string, data []byte) file {
	return file{
		name: name,
		size: int64(len(data)),
		open: func() ([]byte, error) { return data, nil },
	}
}

// lazyFile is a MediaFile whose bytes are read on first use.
type lazyFile struct {
	name string
	size int64
	open func() ([]byte, error)
}

func (f *lazyFile) Name() string           { return f.name }
func (f *lazyFile) Size() int64            { return f.size }
func (f *lazyFile) ContentType() string    { return ContentType(f.name) }
func (f *lazyFile) Bytes() ([]byte, error) { return f.open() }

var audioTypes = map[string]string{
	".opus": "audio/ogg; codecs=opus",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
}

// ContentType labels a file by extension.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
