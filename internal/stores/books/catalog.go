// Package books holds the user's reading list.
package books

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Book is a single entry of the reading list
type Book struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Author string `json:"author" yaml:"author"`
	Status string `json:"status" yaml:"status"`
	Rating *int   `json:"rating,omitempty" yaml:"rating"` // 1-5, nil when unrated
	Notes  string `json:"notes,omitempty" yaml:"notes"`
}

type catalogFile struct {
	Books []Book `yaml:"books"`
}

// Catalog is an ordered, read-only list of books
type Catalog struct {
	books []Book
}

// NewCatalog creates a catalog from the given books, keeping their order
func NewCatalog(books []Book) *Catalog {
	return &Catalog{books: append([]Book(nil), books...)}
}

// DefaultCatalog returns the built-in placeholder reading list
func DefaultCatalog() *Catalog {
	return NewCatalog([]Book{
		{ID: "book1", Title: "Book 1", Author: "Author 1", Status: "read"},
		{ID: "book2", Title: "Book 2", Author: "Author 2", Status: "read"},
		{ID: "book3", Title: "Book 3", Author: "Author 3", Status: "read"},
	})
}

// LoadCatalog reads a YAML reading list of the form
//
//	books:
//	  - id: dune
//	    title: Dune
//	    author: Frank Herbert
//	    status: read
//	    rating: 5
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read book catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(f, &file); err != nil {
		return nil, fmt.Errorf("failed to load book catalog: %w", err)
	}

	for i, b := range file.Books {
		if strings.TrimSpace(b.Title) == "" {
			return nil, fmt.Errorf("book %d has no title", i+1)
		}
		if b.ID == "" {
			file.Books[i].ID = fmt.Sprintf("book%d", i+1)
		}
		if b.Status == "" {
			file.Books[i].Status = "read"
		}
		if b.Rating != nil && (*b.Rating < 1 || *b.Rating > 5) {
			return nil, fmt.Errorf("book %q has rating %d outside 1-5", b.Title, *b.Rating)
		}
	}

	return NewCatalog(file.Books), nil
}

// LoadCatalogWithFallback loads the catalog at path, or the default catalog when the
// path is empty
func LoadCatalogWithFallback(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	return LoadCatalog(path)
}

// Books returns a copy of every book in the catalog
func (c *Catalog) Books() []Book {
	return append([]Book(nil), c.books...)
}

// Len returns the number of books
func (c *Catalog) Len() int {
	return len(c.books)
}

// Find looks a book up by id or title, ignoring case and surrounding whitespace
func (c *Catalog) Find(name string) (Book, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, b := range c.books {
		if strings.ToLower(b.ID) == name || strings.ToLower(b.Title) == name {
			return b, true
		}
	}
	return Book{}, false
}

// Summary lists every book as a sentence the assistant can read out
func (c *Catalog) Summary() string {
	if len(c.books) == 0 {
		return "You haven't recorded any books yet."
	}

	lines := make([]string, 0, len(c.books))
	for _, b := range c.books {
		line := fmt.Sprintf("- %s by %s", b.Title, b.Author)
		if b.Rating != nil {
			line += fmt.Sprintf(" (Rating: %d/5)", *b.Rating)
		}
		if b.Notes != "" {
			line += " - Notes: " + b.Notes
		}
		lines = append(lines, line)
	}

	return fmt.Sprintf("You have read %d books:\n%s", len(c.books), strings.Join(lines, "\n"))
}

// Details describes a single book, or explains which books exist when it cannot be found
func (c *Catalog) Details(name string) string {
	if len(c.books) == 0 {
		return "You haven't recorded any books yet."
	}

	b, ok := c.Find(name)
	if !ok {
		titles := make([]string, 0, len(c.books))
		for _, b := range c.books {
			titles = append(titles, b.Title)
		}
		return fmt.Sprintf("I couldn't find a book called '%s'. Available books are: %s", name, strings.Join(titles, ", "))
	}

	rating := "Not rated"
	if b.Rating != nil {
		rating = strconv.Itoa(*b.Rating)
	}
	notes := b.Notes
	if notes == "" {
		notes = "No notes"
	}

	return strings.Join([]string{
		"Book Details:",
		"- Title: " + b.Title,
		"- Author: " + b.Author,
		"- Status: " + b.Status,
		"- Rating: " + rating,
		"- Notes: " + notes,
	}, "\n")
}
