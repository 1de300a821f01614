package endpointrt

import (
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"

	"github.com/kitehttp/kite/paramspec"
	"github.com/kitehttp/kite/problem"
)

// extractParam fills one Path/Query/Header/Cookie/File parameter into
// inVal per §4.4 step 3, aggregating failures into errs rather than
// stopping at the first (§8 completeness property).
func extractParam(inVal reflect.Value, p paramspec.ParamDescriptor, r *http.Request, errs *problem.InvalidRequestErrors) {
	field := inVal.FieldByIndex(p.FieldIndex)

	if p.Role == paramspec.RoleFile {
		extractFile(field, p, r, errs)
		return
	}

	raws, present := rawValues(p, r)
	if !present {
		if p.HasDefault {
			raws = []string{p.Default}
		} else if p.Required {
			errs.Add("missing-request-param", p.Role.String(), p.SourceKey, p.SourceKey+" is required")
			return
		} else {
			return // absent, optional, no default: leave the zero value
		}
	}

	if p.MultiValue {
		setMultiValue(field, p, raws, errs)
		return
	}

	raw := ""
	if len(raws) > 0 {
		raw = raws[0]
	}
	setSingleValue(field, p, raw, errs)
}

// rawValues fetches the wire values for p from its declared source,
// percent-decoding path segments first (§4.4 step 3 Path rule).
func rawValues(p paramspec.ParamDescriptor, r *http.Request) ([]string, bool) {
	switch p.Role {
	case paramspec.RolePath:
		v := r.PathValue(p.SourceKey)
		if v == "" {
			return nil, false
		}
		if decoded, err := url.PathUnescape(v); err == nil {
			v = decoded
		}
		return []string{v}, true
	case paramspec.RoleQuery:
		vs, ok := r.URL.Query()[p.SourceKey]
		return vs, ok && len(vs) > 0
	case paramspec.RoleHeader:
		vs := r.Header.Values(httpHeaderName(p.SourceKey))
		return vs, len(vs) > 0
	case paramspec.RoleCookie:
		cookies := r.CookiesNamed(p.SourceKey)
		if len(cookies) == 0 {
			return nil, false
		}
		vs := make([]string, len(cookies))
		for i, c := range cookies {
			vs[i] = c.Value
		}
		return vs, true
	default:
		return nil, false
	}
}

// httpHeaderName normalizes a header source key to the canonical form
// net/http.Header expects; kebab-cased parameter names (x-token) and
// already-canonical names both resolve the same header (§4.4: "compare
// case-insensitively").
func httpHeaderName(name string) string {
	return http.CanonicalHeaderKey(name)
}

func setSingleValue(field reflect.Value, p paramspec.ParamDescriptor, raw string, errs *problem.InvalidRequestErrors) {
	if p.Decoder == nil {
		return
	}
	v, err := p.Decoder(raw)
	if err != nil {
		errs.Add("invalid-param-value", p.Role.String(), p.SourceKey, "invalid value: "+err.Error())
		return
	}
	for _, msg := range p.Constraints.ValidateValue(v) {
		errs.Add("invalid-param-value", p.Role.String(), p.SourceKey, msg)
	}
	assignDecoded(field, v)
}

func setMultiValue(field reflect.Value, p paramspec.ParamDescriptor, raws []string, errs *problem.InvalidRequestErrors) {
	itemType := p.Type.ItemType
	slice := reflect.MakeSlice(reflect.SliceOf(itemType), 0, len(raws))
	for _, raw := range raws {
		v, err := p.Decoder(raw)
		if err != nil {
			errs.Add("invalid-param-value", p.Role.String(), p.SourceKey, "invalid value: "+err.Error())
			continue
		}
		slice = reflect.Append(slice, v)
	}
	for _, msg := range p.Constraints.ValidateValue(slice) {
		errs.Add("invalid-param-value", p.Role.String(), p.SourceKey, msg)
	}
	assignDecoded(field, slice)
}

// assignDecoded sets field to v, wrapping v in a pointer first if field
// is nullable (§4.1: nullable reduces a pointer type to its elem).
func assignDecoded(field reflect.Value, v reflect.Value) {
	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		ptr.Elem().Set(v)
		field.Set(ptr)
		return
	}
	field.Set(v)
}

// UploadFile is the bound value for a File-role parameter: filename,
// content type, declared size, and a lazy reader opened on demand
// (§4.4 step 3 Form).
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (multipart.File, error)
}

func extractFile(field reflect.Value, p paramspec.ParamDescriptor, r *http.Request, errs *problem.InvalidRequestErrors) {
	if r.MultipartForm == nil {
		if p.Required {
			errs.Add("missing-request-param", "form", p.SourceKey, p.SourceKey+" is required")
		}
		return
	}
	headers := r.MultipartForm.File[p.SourceKey]
	if len(headers) == 0 {
		if p.Required {
			errs.Add("missing-request-param", "form", p.SourceKey, p.SourceKey+" is required")
		}
		return
	}
	if p.Constraints.MaxFiles != nil && len(headers) > *p.Constraints.MaxFiles {
		errs.Add("invalid-form-error", "form", p.SourceKey, "exceeds max_files")
		return
	}
	fh := headers[0]
	if p.Constraints.MaxLength != nil && int(fh.Size) > *p.Constraints.MaxLength {
		errs.Add("invalid-form-error", "form", p.SourceKey, "file exceeds max_length")
		return
	}
	uf := UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open:        func() (multipart.File, error) { return fh.Open() },
	}
	if field.Type() == reflect.TypeOf(uf) {
		field.Set(reflect.ValueOf(uf))
	}
}
