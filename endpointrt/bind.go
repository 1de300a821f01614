package endpointrt

import (
	"context"
	"net/http"
	"reflect"

	"github.com/kitehttp/kite/depgraph"
	"github.com/kitehttp/kite/paramspec"
	"github.com/kitehttp/kite/problem"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Options configures Bind.
type Options struct {
	Graph  *depgraph.Graph
	Mapper *problem.Mapper

	// StatusCode is the success status sent for a non-union, non-Empty
	// return value. Defaults to 200.
	StatusCode int

	// VariantStatus maps a union payload's concrete Go type to the
	// status it is sent with, keying the "status attached to the
	// raised/returned variant" rule of §3 Invariants.
	VariantStatus map[reflect.Type]int

	// BodySchema, if set, structurally validates the raw JSON body
	// before it is decoded into the declared Go type (§4.4 step 3).
	BodySchema *jsonschema.Schema

	MaxBodyBytes       int64 // 0 means unlimited
	MaxMultipartMemory int64 // 0 defaults to 32<<20

	// OnExitError receives errors from resource release callbacks; the
	// in-flight response always takes precedence (§7).
	OnExitError func(error)
}

var (
	ctxType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType      = reflect.TypeOf((*error)(nil)).Elem()
	respUnion    = reflect.TypeOf((*responseUnion)(nil)).Elem()
	resolverType = reflect.TypeOf((*depgraph.Resolver)(nil))
)

type responseUnion interface{ ResponseUnion() }

type endpoint struct {
	sig     *paramspec.EndpointSignature
	fn      reflect.Value
	inType  reflect.Type
	scoped  bool
	opts    Options
	mapper  *problem.Mapper
}

// Bind analyses fn's signature — func(context.Context, In) (Out, error)
// — builds its EndpointSignature, and returns the bound http.Handler
// implementing the per-request contract of §4.4.
func Bind(method, routePath string, fn any, opts Options) (http.Handler, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func || fnType.NumIn() != 2 || fnType.NumOut() != 2 {
		return nil, errShape(method, routePath)
	}
	if fnType.In(0) != ctxType {
		return nil, errShape(method, routePath)
	}
	if !fnType.Out(1).Implements(errType) {
		return nil, errShape(method, routePath)
	}

	var isDep paramspec.DependencyChecker
	if opts.Graph != nil {
		isDep = opts.Graph.Has
	}

	inType := fnType.In(1)
	structType := inType
	for structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	sig, err := paramspec.ParseSignature(method, routePath, structType, isDep)
	if err != nil {
		return nil, err
	}

	scoped := false
	if opts.Graph != nil && len(sig.Dependencies) > 0 {
		plan, err := opts.Graph.Plan(sig.Dependencies)
		if err != nil {
			return nil, err
		}
		scoped = plan.Scoped
	}
	sig.Scoped = scoped

	mapper := opts.Mapper
	if mapper == nil {
		mapper = problem.NewMapper()
	}
	if opts.StatusCode == 0 {
		opts.StatusCode = http.StatusOK
	}

	ep := &endpoint{sig: sig, fn: fnVal, inType: structType, scoped: scoped, opts: opts, mapper: mapper}
	return http.HandlerFunc(ep.serveHTTP), nil
}

func errShape(method, routePath string) error {
	return &signatureError{method: method, routePath: routePath}
}

type signatureError struct{ method, routePath string }

func (e *signatureError) Error() string {
	return "endpointrt: " + e.method + " " + e.routePath + " handler must be func(context.Context, In) (Out, error)"
}

func (ep *endpoint) serveHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inPtr := reflect.New(ep.inType)
	inVal := inPtr.Elem()

	var errs problem.InvalidRequestErrors

	var resolverParams []paramspec.ParamDescriptor
	for _, p := range ep.sig.PrimitiveParams {
		if p.GoType == resolverType {
			resolverParams = append(resolverParams, p)
			continue
		}
		bindPrimitive(inVal.FieldByIndex(p.FieldIndex), p.GoType, ctx, w, r)
	}

	for _, p := range ep.sig.Params {
		extractParam(inVal, p, r, &errs)
	}

	if ep.sig.BodyParam != nil {
		decodeBody(inVal, *ep.sig.BodyParam, r, ep.opts, &errs)
	}
	if ep.sig.FormParam != nil {
		decodeForm(inVal, *ep.sig.FormParam, r, ep.opts, &errs)
	}

	if len(errs.Errors) > 0 {
		_ = problem.Write(w, errs.ToDetail(r.URL.Path))
		return
	}

	var resolver *depgraph.Resolver
	if ep.opts.Graph != nil {
		if ep.scoped {
			resolver = ep.opts.Graph.Root().NewChildScope()
			defer resolver.Close(ep.opts.OnExitError)
		} else {
			resolver = ep.opts.Graph.Root()
		}
		for _, p := range ep.sig.DependencyParams {
			v, err := resolver.Resolve(ctx, p.GoType)
			if err != nil {
				_ = problem.Write(w, ep.mapper.Resolve(r, err))
				return
			}
			inVal.FieldByIndex(p.FieldIndex).Set(v)
		}
	}
	if resolver != nil {
		for _, p := range resolverParams {
			inVal.FieldByIndex(p.FieldIndex).Set(reflect.ValueOf(resolver))
		}
	}

	argIn := inVal
	if ep.fn.Type().In(1).Kind() == reflect.Ptr {
		argIn = inPtr
	}
	results := ep.fn.Call([]reflect.Value{reflect.ValueOf(ctx), argIn})
	outVal, errVal := results[0], results[1]

	if !errVal.IsNil() {
		err := errVal.Interface().(error)
		d := ep.mapper.Resolve(r, err)
		if d == nil {
			d = problem.Internal("").ToDetail(r.URL.Path)
		}
		_ = problem.Write(w, d)
		return
	}

	writeResponse(w, outVal, ep.opts)
}

func bindPrimitive(field reflect.Value, t reflect.Type, ctx context.Context, w http.ResponseWriter, r *http.Request) {
	switch t {
	case ctxType:
		field.Set(reflect.ValueOf(ctx))
	case reflect.TypeOf((*http.Request)(nil)):
		field.Set(reflect.ValueOf(r))
	case reflect.TypeOf((*http.ResponseWriter)(nil)).Elem():
		field.Set(reflect.ValueOf(w))
	}
}
