package gateway

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/alapierre/go-zatca-client/zatca"
)

const (
	CategoryValidation    = "Validation"
	CategoryConfiguration = "Configuration"
	CategoryUpstream      = "Upstream"
	CategoryServer        = "Server"
)

// ErrorItem is one entry of the normalized error list.
type ErrorItem struct {
	Category string
	Code     string
	Message  string
}

func (i ErrorItem) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("category")
	e.Str(i.Category)
	e.FieldStart("code")
	e.Str(i.Code)
	e.FieldStart("message")
	e.Str(i.Message)
	e.ObjEnd()
}

// Result is the normalized envelope returned by every gateway call.
// Status is zero when no HTTP response was received.
type Result struct {
	OK        bool
	Status    int
	Data      jx.Raw
	Errors    []ErrorItem
	Timestamp time.Time
}

func (r *Result) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("ok")
	e.Bool(r.OK)
	if r.Status != 0 {
		e.FieldStart("status")
		e.Int(r.Status)
	}
	if len(r.Data) > 0 {
		e.FieldStart("data")
		e.Raw(r.Data)
	}
	if len(r.Errors) > 0 {
		e.FieldStart("errors")
		e.ArrStart()
		for _, item := range r.Errors {
			item.Encode(e)
		}
		e.ArrEnd()
	}
	e.FieldStart("timestamp")
	e.Str(r.Timestamp.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func (r *Result) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	r.Encode(&e)
	return e.Bytes(), nil
}

// Err converts a failed result into a *zatca.Error. It returns nil for
// successful results.
func (r *Result) Err() error {
	if r == nil || r.OK || len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	switch first.Category {
	case CategoryUpstream:
		return zatca.ErrUpstream.Detail("status %d: %s", r.Status, first.Message)
	case CategoryServer:
		return zatca.ErrTransport.Detail("%s", first.Message)
	case CategoryConfiguration:
		return &zatca.Error{Kind: zatca.KindConfiguration, Code: first.Code, Message: first.Message}
	default:
		return &zatca.Error{Kind: zatca.KindValidation, Code: first.Code, Message: first.Message}
	}
}

func (c *Client) rejected(category string, err *zatca.Error) (*Result, error) {
	status := http.StatusBadRequest
	if category == CategoryConfiguration {
		status = http.StatusInternalServerError
	}
	return &Result{
		OK:        false,
		Status:    status,
		Errors:    []ErrorItem{{Category: category, Code: err.Code, Message: err.Message}},
		Timestamp: c.now(),
	}, err
}

func (c *Client) transportFailure(err error) *Result {
	return &Result{
		OK:        false,
		Errors:    []ErrorItem{{Category: CategoryServer, Code: zatca.ErrTransport.Code, Message: err.Error()}},
		Timestamp: c.now(),
	}
}

func (c *Client) upstreamResponse(status int, body []byte) *Result {
	res := &Result{
		OK:        status >= 200 && status < 300,
		Status:    status,
		Data:      asRaw(body),
		Timestamp: c.now(),
	}
	if res.OK {
		return res
	}

	msg := upstreamMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = zatca.ErrUpstream.Message
	}
	res.Errors = []ErrorItem{{Category: CategoryUpstream, Code: zatca.ErrUpstream.Code, Message: msg}}
	return res
}

// asRaw keeps JSON bodies as they are and wraps anything else in a JSON
// string.
func asRaw(body []byte) jx.Raw {
	if len(body) == 0 {
		return nil
	}
	if jx.Valid(body) {
		return jx.Raw(body)
	}
	var e jx.Encoder
	e.Str(string(body))
	return jx.Raw(e.Bytes())
}

// upstreamMessage extracts a human readable message from a gateway error
// body: the top-level "message", or the first
// validationResults.errorMessages[].message.
func upstreamMessage(body []byte) string {
	if !jx.Valid(body) {
		return ""
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return ""
	}

	var top, validation string
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "message":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			top = s
			return nil
		case "validationResults":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "errorMessages" || d.Next() != jx.Array {
					return d.Skip()
				}
				return d.Arr(func(d *jx.Decoder) error {
					if validation != "" || d.Next() != jx.Object {
						return d.Skip()
					}
					return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
						if string(key) != "message" || d.Next() != jx.String {
							return d.Skip()
						}
						s, err := d.Str()
						if err != nil {
							return err
						}
						validation = s
						return nil
					})
				})
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return ""
	}
	if top != "" {
		return top
	}
	return validation
}
