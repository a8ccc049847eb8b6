// Package batch signs a series of invoices in one pass: invoices are pulled
// from an InvoiceSource, signed concurrently, linked into a hash chain in
// source order and optionally packed into a ZIP archive.
package batch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alapierre/go-zatca-client/zatca/hash"
	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/xades"
)

var logger = logrus.WithField("component", "zatca.batch")

// Signer signs a single invoice document.
type Signer interface {
	Sign(invoiceXML string) (*model.SignedInvoice, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(invoiceXML string) (*model.SignedInvoice, error)

func (f SignerFunc) Sign(invoiceXML string) (*model.SignedInvoice, error) {
	return f(invoiceXML)
}

// BatchConfig defines how a batch is signed and chained.
type BatchConfig struct {
	// Concurrency bounds parallel signing. Zero or negative means 4.
	Concurrency int

	// Store receives the links. If nil, an in-memory chain starting at
	// genesis is used.
	Store hash.Store

	// ChainKey selects the chain inside Store. Defaults to "default/default".
	ChainKey string

	// HashSource selects which digest is chained. Defaults to hash.SourceXML.
	HashSource hash.Source

	// OutputZip, when set, is the path of a ZIP archive receiving the signed
	// documents.
	OutputZip string
}

// BatchResult lists signed invoices in source order.
type BatchResult struct {
	Items   []SignedItem
	ZipPath string
}

// SignedItem is one signed invoice and its place in the chain.
type SignedItem struct {
	ID       string
	FileName string
	Signed   *model.SignedInvoice
	Link     model.InvoiceChainLink
}

// InvoiceItem represents a single invoice to be signed.
//
// InvoiceItem is intended to be immutable after construction.
type InvoiceItem struct {
	// ID is a logical identifier (path, DB id, etc.).
	ID string

	// FileName is the name used inside the output ZIP. If empty, a name is
	// generated from ID.
	FileName string

	// XML is the unsigned invoice document.
	XML []byte

	// UUID of the invoice. If empty it is read from the document.
	UUID string

	// QR is required when the batch chains on hash.SourceTLV.
	QR *model.InvoiceQR
}

// InvoiceSource is a generic source of invoices (iterator). Next returns
// io.EOF when exhausted.
type InvoiceSource interface {
	Next() (*InvoiceItem, error)
}

// SignFromSource signs every invoice produced by src.
func SignFromSource(ctx context.Context, cfg BatchConfig, src InvoiceSource, signer Signer) (*BatchResult, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Store == nil {
		cfg.Store = hash.NewMemoryStore(nil)
	}
	if cfg.ChainKey == "" {
		cfg.ChainKey = hash.ChainKey("default", "default")
	}
	if cfg.HashSource == "" {
		cfg.HashSource = hash.SourceXML
	}

	var items []*InvoiceItem
	for {
		item, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invoice source error: %w", err)
		}
		if len(item.XML) == 0 {
			return nil, fmt.Errorf("invoice %d (%s) has empty XML", len(items), item.ID)
		}
		if cfg.HashSource == hash.SourceTLV && item.QR == nil {
			return nil, fmt.Errorf("invoice %d (%s) has no QR data for the tlv chain source", len(items), item.ID)
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no invoices produced by source")
	}

	signed := make([]*model.SignedInvoice, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := signer.Sign(string(item.XML))
			if err != nil {
				return fmt.Errorf("sign invoice %d (%s): %w", i, item.ID, err)
			}
			signed[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Every UUID and hash is resolved before the store is touched, so a bad
	// item leaves the chain head where it was.
	entries := make([]hash.Entry, 0, len(items))
	for i, item := range items {
		uuid := item.UUID
		if uuid == "" {
			var err error
			if uuid, err = xades.DocumentUUID(item.XML); err != nil {
				return nil, fmt.Errorf("invoice %d (%s): %w", i, item.ID, err)
			}
		}
		if uuid == "" {
			return nil, fmt.Errorf("invoice %d (%s) has no UUID", i, item.ID)
		}

		var qr model.InvoiceQR
		if item.QR != nil {
			qr = *item.QR
		}
		h, err := cfg.HashSource.ChainHash(signed[i], qr)
		if err != nil {
			return nil, fmt.Errorf("hash invoice %d (%s): %w", i, item.ID, err)
		}
		entries = append(entries, hash.Entry{UUID: uuid, InvoiceHash: h})
	}

	result := &BatchResult{Items: make([]SignedItem, 0, len(items))}
	for i, item := range items {
		result.Items = append(result.Items, SignedItem{
			ID:       item.ID,
			FileName: zipName(item, i),
			Signed:   signed[i],
		})
	}

	if cfg.OutputZip != "" {
		if err := writeZip(cfg.OutputZip, result.Items); err != nil {
			return nil, err
		}
		result.ZipPath = cfg.OutputZip
	}

	links, err := cfg.Store.AppendAll(ctx, cfg.ChainKey, entries)
	if err != nil {
		if result.ZipPath != "" {
			_ = os.Remove(result.ZipPath)
		}
		return nil, fmt.Errorf("chain batch: %w", err)
	}
	for i := range result.Items {
		result.Items[i].Link = links[i]
	}

	logger.WithField("invoices", len(result.Items)).Debug("batch signed")

	return result, nil
}

func zipName(item *InvoiceItem, index int) string {
	if item.FileName != "" {
		return item.FileName
	}
	base := item.ID
	if base == "" {
		return fmt.Sprintf("invoice_%06d.xml", index+1)
	}
	return fmt.Sprintf("%06d_%s", index+1, filepath.Base(base))
}

func writeZip(path string, items []SignedItem) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close zip file: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	zw := zip.NewWriter(f)
	for _, it := range items {
		w, createErr := zw.Create(it.FileName)
		if createErr != nil {
			_ = zw.Close()
			return fmt.Errorf("create zip entry for %q: %w", it.FileName, createErr)
		}
		if _, writeErr := io.WriteString(w, it.Signed.SignedXML); writeErr != nil {
			_ = zw.Close()
			return fmt.Errorf("write zip entry for %q: %w", it.FileName, writeErr)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}
	return nil
}

// fileInvoiceSource implements InvoiceSource for a slice of file paths.
type fileInvoiceSource struct {
	paths []string
	idx   int
}

func NewFileInvoiceSource(paths []string) InvoiceSource {
	return &fileInvoiceSource{paths: paths}
}

func (s *fileInvoiceSource) Next() (*InvoiceItem, error) {
	if s.idx >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.idx]
	s.idx++

	xmlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read invoice %q: %w", path, err)
	}

	return &InvoiceItem{ID: path, FileName: filepath.Base(path), XML: xmlBytes}, nil
}

type sliceInvoiceSource struct {
	items []*InvoiceItem
	idx   int
}

// NewSliceInvoiceSource iterates over items in order.
func NewSliceInvoiceSource(items ...*InvoiceItem) InvoiceSource {
	return &sliceInvoiceSource{items: items}
}

func (s *sliceInvoiceSource) Next() (*InvoiceItem, error) {
	if s.idx >= len(s.items) {
		return nil, io.EOF
	}
	item := s.items[s.idx]
	s.idx++
	return item, nil
}
