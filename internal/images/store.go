package images

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// URLPrefix is the path the HTTP layer serves the image directory under.
const URLPrefix = "/uploads/images/"

var (
	// ErrNotImage is returned when a payload does not sniff as a supported image.
	ErrNotImage = errors.New("payload is not a supported image")
	// ErrInvalidName is returned for file names that would escape the directory.
	ErrInvalidName = errors.New("invalid image name")
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsImageFile reports whether name carries one of the supported image extensions.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Image describes one stored photo.
type Image struct {
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	ModTime time.Time `json:"modTime"`
	Width   int       `json:"width,omitempty"`
	Height  int       `json:"height,omitempty"`
}

// AspectRatio returns width/height, or 0 when the dimensions are unknown.
func (i Image) AspectRatio() float64 {
	if i.Width <= 0 || i.Height <= 0 {
		return 0
	}
	return float64(i.Width) / float64(i.Height)
}

// Status is the image section of the status endpoint.
type Status struct {
	ImageCount int `json:"imageCount"`
}

type dims struct {
	modTime       time.Time
	width, height int
}

// Store is a directory of photos. Listing order is newest modification first.
type Store struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	dims map[string]dims // decoded dimensions keyed by file name
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Store{
		dir:  dir,
		now:  time.Now,
		dims: make(map[string]dims),
	}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// List returns every image in the directory, newest first.
func (s *Store) List() ([]Image, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	list := make([]Image, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		seen[e.Name()] = true

		img := Image{
			Name:    e.Name(),
			URL:     URLPrefix + e.Name(),
			ModTime: info.ModTime(),
		}
		img.Width, img.Height = s.dimensionsLocked(e.Name(), info.ModTime())
		list = append(list, img)
	}

	for name := range s.dims {
		if !seen[name] {
			delete(s.dims, name)
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].ModTime.Equal(list[j].ModTime) {
			return list[i].Name > list[j].Name
		}
		return list[i].ModTime.After(list[j].ModTime)
	})
	return list, nil
}

func (s *Store) dimensionsLocked(name string, modTime time.Time) (int, int) {
	if d, ok := s.dims[name]; ok && d.modTime.Equal(modTime) {
		return d.width, d.height
	}

	var d dims
	d.modTime = modTime
	f, err := os.Open(filepath.Join(s.dir, name))
	if err == nil {
		cfg, _, derr := image.DecodeConfig(f)
		f.Close()
		if derr == nil {
			d.width, d.height = cfg.Width, cfg.Height
		} else {
			log.Printf("DEBUG: images: cannot read dimensions of %s: %v", name, derr)
		}
	}
	s.dims[name] = d
	return d.width, d.height
}

// URLs returns the image URLs, newest first. Errors degrade to an empty list.
func (s *Store) URLs() []string {
	list, err := s.List()
	if err != nil {
		log.Printf("ERROR: images: failed to get image list: %v", err)
		return []string{}
	}
	urls := make([]string, len(list))
	for i, img := range list {
		urls[i] = img.URL
	}
	return urls
}

// Lookup returns the stored image behind a URL produced by List.
func (s *Store) Lookup(url string) (Image, bool) {
	name := strings.TrimPrefix(url, URLPrefix)
	if name == url || validateName(name) != nil {
		return Image{}, false
	}
	info, err := os.Stat(filepath.Join(s.dir, name))
	if err != nil || info.IsDir() {
		return Image{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	img := Image{Name: name, URL: url, ModTime: info.ModTime()}
	img.Width, img.Height = s.dimensionsLocked(name, info.ModTime())
	return img, true
}

// Count returns the number of stored images.
func (s *Store) Count() int {
	list, err := s.List()
	if err != nil {
		return 0
	}
	return len(list)
}

// Status reports the image count.
func (s *Store) Status() Status {
	return Status{ImageCount: s.Count()}
}

// Save writes an image payload under a fresh unique name derived from the
// original file name's extension. The content must sniff as an image.
func (s *Store) Save(originalName string, data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s detected as %s", ErrNotImage, originalName, mt.String())
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if !imageExtensions[ext] {
		ext = mt.Extension()
	}
	if !imageExtensions[ext] {
		return "", fmt.Errorf("%w: unsupported type %s", ErrNotImage, mt.String())
	}

	name := fmt.Sprintf("image_%d_%s%s", s.now().UnixMilli(), uuid.NewString()[:8], ext)
	path := filepath.Join(s.dir, name)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	log.Printf("INFO: images: saved %s (%s, %d bytes)", name, mt.String(), len(data))
	return name, nil
}

// Delete removes a single image by file name.
func (s *Store) Delete(name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	log.Printf("INFO: images: deleted %s", name)
	return true, nil
}

// Cleanup keeps the newest max images and deletes the rest. It returns the
// number of deleted files.
func (s *Store) Cleanup(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	list, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(list) <= max {
		return 0, nil
	}

	var deleted int
	for _, img := range list[max:] {
		ok, err := s.Delete(img.Name)
		if err != nil {
			log.Printf("ERROR: images: cleanup: %v", err)
			continue
		}
		if ok {
			deleted++
		}
	}
	log.Printf("INFO: images: cleaned up %d old images", deleted)
	return deleted, nil
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
