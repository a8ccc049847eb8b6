package gateway

import (
	"encoding/base64"
	"strings"

	"github.com/go-faster/jx"

	"github.com/alapierre/go-zatca-client/zatca/model"
)

// ClearanceRequest is the body of a clearance submission.
type ClearanceRequest struct {
	UUID        string
	InvoiceHash string
	// Invoice is the signed XML, base64 encoded.
	Invoice string
	// PreviousInvoiceHash and InvoiceCounterValue are sent only when set.
	// Counters start at 1, so zero means absent.
	PreviousInvoiceHash string
	InvoiceCounterValue uint64
}

// NewClearanceRequest builds a request from a signed invoice and its chain
// link.
func NewClearanceRequest(signed *model.SignedInvoice, link model.InvoiceChainLink) ClearanceRequest {
	return ClearanceRequest{
		UUID:                link.UUID,
		InvoiceHash:         link.InvoiceHash,
		Invoice:             base64.StdEncoding.EncodeToString([]byte(signed.SignedXML)),
		PreviousInvoiceHash: link.PreviousInvoiceHash,
		InvoiceCounterValue: link.CounterValue,
	}
}

func (r ClearanceRequest) missing() []string {
	return missingFields("uuid", r.UUID, "invoiceHash", r.InvoiceHash, "invoice", r.Invoice)
}

func (r ClearanceRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("uuid")
	e.Str(r.UUID)
	e.FieldStart("invoiceHash")
	e.Str(r.InvoiceHash)
	e.FieldStart("invoice")
	e.Str(r.Invoice)
	if r.PreviousInvoiceHash != "" {
		e.FieldStart("previousInvoiceHash")
		e.Str(r.PreviousInvoiceHash)
	}
	if r.InvoiceCounterValue != 0 {
		e.FieldStart("invoiceCounterValue")
		e.UInt64(r.InvoiceCounterValue)
	}
	e.ObjEnd()
}

// ReportingRequest is the body of a reporting submission. Simplified
// invoices are not chained against the clearance sequence, so it carries
// no previous hash or counter.
type ReportingRequest struct {
	UUID        string
	InvoiceHash string
	Invoice     string
}

func NewReportingRequest(signed *model.SignedInvoice, uuid, invoiceHash string) ReportingRequest {
	return ReportingRequest{
		UUID:        uuid,
		InvoiceHash: invoiceHash,
		Invoice:     base64.StdEncoding.EncodeToString([]byte(signed.SignedXML)),
	}
}

func (r ReportingRequest) missing() []string {
	return missingFields("uuid", r.UUID, "invoiceHash", r.InvoiceHash, "invoice", r.Invoice)
}

func (r ReportingRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("uuid")
	e.Str(r.UUID)
	e.FieldStart("invoiceHash")
	e.Str(r.InvoiceHash)
	e.FieldStart("invoice")
	e.Str(r.Invoice)
	e.ObjEnd()
}

type OnboardingRequest struct {
	// CSR is the base64 certificate signing request.
	CSR string
}

func (r OnboardingRequest) missing() []string {
	return missingFields("csr", r.CSR)
}

func (r OnboardingRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("csr")
	e.Str(r.CSR)
	e.ObjEnd()
}

type ProductionCSIDRequest struct {
	// ComplianceRequestID is optional and omitted when empty.
	ComplianceRequestID string
}

func (r ProductionCSIDRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	if r.ComplianceRequestID != "" {
		e.FieldStart("compliance_request_id")
		e.Str(r.ComplianceRequestID)
	}
	e.ObjEnd()
}

// missingFields takes name/value pairs and returns the names whose value is
// blank.
func missingFields(pairs ...string) []string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	return missing
}
