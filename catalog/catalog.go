// Package catalog encodes and publishes the method catalog produced by
// (*router.Router).JSONSchemaRoutes so that documentation generators and
// client code generators can consume it out of process.
package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ggoodman/rpc-router-go/router"
	"github.com/pelletier/go-toml/v2"
	"github.com/ucarion/jcs"
	"gopkg.in/yaml.v3"
)

// Format is a catalog document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	// FormatTOML nests the entries under a top-level "methods" array of
	// tables, since TOML documents cannot be bare arrays.
	FormatTOML Format = "toml"
)

// tomlRoot is the key FormatTOML nests entries under.
const tomlRoot = "methods"

// ErrUnknownFormat is returned for formats other than FormatJSON, FormatYAML
// and FormatTOML.
var ErrUnknownFormat = errors.New("catalog: unknown format")

// ParseFormat maps a user-supplied name to a Format. Matching is
// case-insensitive and accepts "yml". The empty string means FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Marshal encodes entries in the given format.
func Marshal(entries []router.CatalogEntry, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, entries, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes entries to w in the given format. A nil slice is written as an
// empty list.
func Encode(w io.Writer, entries []router.CatalogEntry, f Format) error {
	if entries == nil {
		entries = []router.CatalogEntry{}
	}
	js, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	switch f {
	case FormatJSON:
		js = append(js, '\n')
		_, err := w.Write(js)
		return err
	case FormatYAML:
		// JSON is valid YAML; decoding it into a node keeps key order.
		var doc yaml.Node
		if err := yaml.Unmarshal(js, &doc); err != nil {
			return fmt.Errorf("convert catalog to yaml: %w", err)
		}
		resetStyle(&doc)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return fmt.Errorf("encode catalog yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		var generic []any
		if err := json.Unmarshal(js, &generic); err != nil {
			return fmt.Errorf("convert catalog to toml: %w", err)
		}
		if err := toml.NewEncoder(w).Encode(map[string]any{tomlRoot: generic}); err != nil {
			return fmt.Errorf("encode catalog toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

// Digest returns the hex SHA-256 of the RFC 8785 canonical JSON form of
// entries. It does not depend on the document format, so it identifies a
// catalog across encodings and republications.
func Digest(entries []router.CatalogEntry) (string, error) {
	if entries == nil {
		entries = []router.CatalogEntry{}
	}
	js, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshal catalog: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(js, &normalized); err != nil {
		return "", fmt.Errorf("normalize catalog: %w", err)
	}
	canonical, err := jcs.Format(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize catalog: %w", err)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// resetStyle switches flow collections and quoted scalars inherited from the
// JSON source to block style. The encoder still quotes strings that would
// otherwise read as another type.
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}

// Store persists published catalog documents by name.
type Store interface {
	// Get returns the document published under name, or nil if none exists
	// or it has expired. Errors are reserved for backend failures.
	Get(ctx context.Context, name string) (*Document, error)

	// Put stores doc under name, replacing any previous document.
	Put(ctx context.Context, name string, doc *Document, opts ...Option) error

	// Delete removes the document published under name.
	Delete(ctx context.Context, name string) error

	// List returns the names of all stored documents.
	List(ctx context.Context) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

// Document is an encoded catalog with publication metadata.
type Document struct {
	Format      Format     `json:"format"`
	Data        []byte     `json:"data"`
	Digest      string     `json:"digest,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// IsExpired checks if the document has expired
func (d *Document) IsExpired() bool {
	return d.ExpiresAt != nil && time.Now().After(*d.ExpiresAt)
}

// Entries decodes the document back into catalog entries.
func (d *Document) Entries() ([]router.CatalogEntry, error) {
	var out []router.CatalogEntry
	switch d.Format {
	case FormatJSON, "":
		if err := json.Unmarshal(d.Data, &out); err != nil {
			return nil, fmt.Errorf("decode catalog json: %w", err)
		}
	case FormatYAML:
		var generic any
		if err := yaml.Unmarshal(d.Data, &generic); err != nil {
			return nil, fmt.Errorf("decode catalog yaml: %w", err)
		}
		js, err := json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("decode catalog yaml: %w", err)
		}
		if err := json.Unmarshal(js, &out); err != nil {
			return nil, fmt.Errorf("decode catalog yaml: %w", err)
		}
	case FormatTOML:
		var root map[string]any
		if err := toml.Unmarshal(d.Data, &root); err != nil {
			return nil, fmt.Errorf("decode catalog toml: %w", err)
		}
		methods, ok := root[tomlRoot]
		if !ok {
			return []router.CatalogEntry{}, nil
		}
		js, err := json.Marshal(methods)
		if err != nil {
			return nil, fmt.Errorf("decode catalog toml: %w", err)
		}
		if err := json.Unmarshal(js, &out); err != nil {
			return nil, fmt.Errorf("decode catalog toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(d.Format))
	}
	return out, nil
}

// Option configures Put.
type Option func(*Options)

// Options contains configuration for Put.
type Options struct {
	TTL *time.Duration // Optional: time-to-live for the document
}

// WithTTL sets a time-to-live for the stored document. Non-positive values
// mean no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		if ttl > 0 {
			opts.TTL = &ttl
		}
	}
}

// ApplyOptions folds opts into an Options value. Store implementations use it
// to read Put options.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Publish encodes entries and stores them under name, stamped with their
// Digest.
func Publish(ctx context.Context, s Store, name string, entries []router.CatalogEntry, f Format, opts ...Option) (*Document, error) {
	if name == "" {
		return nil, errors.New("catalog: name is required")
	}
	data, err := Marshal(entries, f)
	if err != nil {
		return nil, err
	}
	digest, err := Digest(entries)
	if err != nil {
		return nil, err
	}
	doc := &Document{Format: f, Data: data, Digest: digest, PublishedAt: time.Now().UTC()}
	if o := ApplyOptions(opts...); o.TTL != nil {
		expiresAt := doc.PublishedAt.Add(*o.TTL)
		doc.ExpiresAt = &expiresAt
	}
	if err := s.Put(ctx, name, doc, opts...); err != nil {
		return nil, fmt.Errorf("publish catalog %q: %w", name, err)
	}
	return doc, nil
}
