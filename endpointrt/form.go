package endpointrt

import (
	"net/http"
	"reflect"

	"github.com/kitehttp/kite/paramspec"
	"github.com/kitehttp/kite/problem"
)

const defaultMaxMultipartMemory = 32 << 20

// decodeForm parses a multipart/urlencoded form and assigns its plain
// fields into p's field; UploadFile fields nested under the same form
// struct are filled by extractFile from r.MultipartForm (§4.4 step 3
// Form).
func decodeForm(inVal reflect.Value, p paramspec.ParamDescriptor, r *http.Request, opts Options, errs *problem.InvalidRequestErrors) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !hasFormContentType(ct) {
		errs.Add("unsupported-media-type", "form", p.SourceKey, "expected form content, got "+ct)
		return
	}

	maxMem := opts.MaxMultipartMemory
	if maxMem == 0 {
		maxMem = defaultMaxMultipartMemory
	}
	if err := r.ParseMultipartForm(maxMem); err != nil {
		errs.Add("invalid-form-error", "form", p.SourceKey, err.Error())
		return
	}

	field := inVal.FieldByIndex(p.FieldIndex)
	structType := field.Type()
	for structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return
	}

	target := reflect.New(structType).Elem()
	for i := 0; i < structType.NumField(); i++ {
		sf := structType.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := target.Field(i)
		if sf.Type == reflect.TypeOf(UploadFile{}) {
			extractFile(fv, formFileDescriptor(sf), r, errs)
			continue
		}
		assignFormField(fv, sf, r, errs)
	}

	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(structType)
		ptr.Elem().Set(target)
		field.Set(ptr)
	} else {
		field.Set(target)
	}

	validateStructFields("form", field, errs)
}

func hasFormContentType(ct string) bool {
	for _, prefix := range []string{"multipart/form-data", "application/x-www-form-urlencoded"} {
		if len(ct) >= len(prefix) && ct[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func formFileDescriptor(sf reflect.StructField) paramspec.ParamDescriptor {
	name := sf.Tag.Get("form")
	if name == "" {
		name = sf.Name
	}
	required := true
	if _, ok := sf.Tag.Lookup("default"); ok {
		required = false
	}
	return paramspec.ParamDescriptor{
		Name: sf.Name, Role: paramspec.RoleFile, SourceKey: name, Required: required,
	}
}

func assignFormField(fv reflect.Value, sf reflect.StructField, r *http.Request, errs *problem.InvalidRequestErrors) {
	name := sf.Tag.Get("form")
	if name == "" {
		name = sf.Name
	}
	raw := r.FormValue(name)
	if raw == "" {
		if def, ok := sf.Tag.Lookup("default"); ok {
			raw = def
		} else {
			return
		}
	}

	decodeType := fv.Type()
	nullable := decodeType.Kind() == reflect.Ptr
	if nullable {
		decodeType = decodeType.Elem()
	}
	dec := paramspec.ScalarDecoder(decodeType)
	if dec == nil {
		return
	}
	v, err := dec(raw)
	if err != nil {
		errs.Add("invalid-param-value", "form", name, "invalid value: "+err.Error())
		return
	}
	c := paramspec.ParseConstraints(sf.Tag.Get("validate"))
	for _, msg := range c.ValidateValue(v) {
		errs.Add("invalid-param-value", "form", name, msg)
	}
	assignDecoded(fv, v)
}
