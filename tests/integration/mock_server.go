package integration

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// albumLink is one album entry rendered on a category listing page
type albumLink struct {
	Path     string
	Title    string
	ThumbSrc string
}

// galleryImage is one img element rendered on an album page
type galleryImage struct {
	Src     string
	SrcAttr string // defaults to "src"
	Alt     string
}

// MockGalleryServer simulates a Yupoo-style photo host: category listing
// pages with album links, album pages with tiered image variants, and a
// photo endpoint serving decodable image bytes.
type MockGalleryServer struct {
	server *httptest.Server

	mu           sync.Mutex
	listings     map[string][]albumLink    // category path -> albums
	albums       map[string][]galleryImage // album path -> gallery
	photoErrors  map[string]int            // photo path -> status code
	photoFailN   map[string]int            // photo path -> remaining failures
	requestCount map[string]int

	photoBytes []byte
}

// NewMockGalleryServer creates a mock photo host with no content configured
func NewMockGalleryServer() *MockGalleryServer {
	m := &MockGalleryServer{
		listings:     make(map[string][]albumLink),
		albums:       make(map[string][]galleryImage),
		photoErrors:  make(map[string]int),
		photoFailN:   make(map[string]int),
		requestCount: make(map[string]int),
		photoBytes:   encodePNG(80),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/categories/", m.handleListing)
	mux.HandleFunc("/albums/", m.handleAlbum)
	mux.HandleFunc("/photos/", m.handlePhoto)
	mux.HandleFunc("/privacy-policy", m.handleStatic)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock host's base URL
func (m *MockGalleryServer) URL() string {
	return m.server.URL
}

// Close shuts the mock host down
func (m *MockGalleryServer) Close() {
	m.server.Close()
}

// AddListing registers the albums shown on a category listing page
func (m *MockGalleryServer) AddListing(categoryPath string, albums []albumLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[categoryPath] = albums
}

// AddAlbum registers the gallery images of an album page
func (m *MockGalleryServer) AddAlbum(albumPath string, images []galleryImage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.albums[albumPath] = images
}

// SetPhotoError makes a photo path return the given status code until cleared
func (m *MockGalleryServer) SetPhotoError(photoPath string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code == 0 {
		delete(m.photoErrors, photoPath)
		return
	}
	m.photoErrors[photoPath] = code
}

// SetPhotoFailures makes a photo path fail with 503 the next n requests
func (m *MockGalleryServer) SetPhotoFailures(photoPath string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photoFailN[photoPath] = n
}

// RequestCount returns how many requests hit the given path
func (m *MockGalleryServer) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount[path]
}

// PhotoRequestTotal returns how many photo downloads were attempted
func (m *MockGalleryServer) PhotoRequestTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for path, n := range m.requestCount {
		if strings.HasPrefix(path, "/photos/") {
			total += n
		}
	}
	return total
}

func (m *MockGalleryServer) count(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[path]++
}

func (m *MockGalleryServer) handleListing(w http.ResponseWriter, r *http.Request) {
	m.count(r.URL.Path)

	m.mu.Lock()
	albums := m.listings[r.URL.Path]
	m.mu.Unlock()

	var b strings.Builder
	b.WriteString("<html><head><title>Category | KitShop</title></head><body>")

	// Listing pages beyond the first are empty, ending pagination
	if r.URL.Query().Get("page") == "" || r.URL.Query().Get("page") == "1" {
		b.WriteString(`<div class="showindex__children">`)
		for _, album := range albums {
			fmt.Fprintf(&b, `<a href="%s" title="%s"><img src="%s" alt="%s"></a>`,
				album.Path, album.Title, album.ThumbSrc, album.Title)
		}
		b.WriteString(`</div>`)
	}

	b.WriteString(`<footer><a href="/privacy-policy">Privacy Policy</a>`)
	b.WriteString(`<a href="https://beian.miit.gov.cn/">ICP 12345</a></footer>`)
	b.WriteString("</body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(b.String()))
}

func (m *MockGalleryServer) handleAlbum(w http.ResponseWriter, r *http.Request) {
	m.count(r.URL.Path)

	m.mu.Lock()
	images, ok := m.albums[r.URL.Path]
	m.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var b strings.Builder
	b.WriteString("<html><head><title>Album | KitShop</title></head><body><div class=\"showalbum__children\">")
	for _, img := range images {
		attr := img.SrcAttr
		if attr == "" {
			attr = "src"
		}
		fmt.Fprintf(&b, `<img %s="%s" alt="%s">`, attr, img.Src, img.Alt)
	}
	b.WriteString("</div></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(b.String()))
}

func (m *MockGalleryServer) handlePhoto(w http.ResponseWriter, r *http.Request) {
	m.count(r.URL.Path)

	m.mu.Lock()
	code := m.photoErrors[r.URL.Path]
	if remaining := m.photoFailN[r.URL.Path]; remaining > 0 {
		m.photoFailN[r.URL.Path] = remaining - 1
		code = http.StatusServiceUnavailable
	}
	m.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(m.photoBytes)
}

func (m *MockGalleryServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	m.count(r.URL.Path)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body>Privacy Policy</body></html>"))
}

// encodePNG renders a square PNG large enough to pass dimension checks
func encodePNG(side int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for x := 0; x < side; x++ {
		for y := 0; y < side; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
