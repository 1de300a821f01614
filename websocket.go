// websocket.go
package kite

import (
	"context"
	"net/http"
	"reflect"

	"github.com/kitehttp/kite/depgraph"
	"github.com/kitehttp/kite/paramspec"
	"golang.org/x/net/websocket"
)

// WSConn is the live connection handed to a WS endpoint.
type WSConn = websocket.Conn

var (
	wsConnType   = reflect.TypeOf((*WSConn)(nil))
	resolverType = reflect.TypeOf((*depgraph.Resolver)(nil))
)

func init() {
	paramspec.PrimitiveTypes[wsConnType] = true
}

// WS registers fn — a func(context.Context, *kite.WSConn, In) error — at
// path under the synthetic "UPGRADE" method (§4.5): the same signature
// parser classifies In's fields, but Body and Form are rejected at bind
// time since a web-socket handshake carries no request body to decode.
func (r *Router) WS(path string, fn any) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func || fnType.NumIn() != 3 || fnType.NumOut() != 1 {
		panic("kite: WS handler must be func(context.Context, *kite.WSConn, In) error")
	}
	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	errType := reflect.TypeOf((*error)(nil)).Elem()
	if fnType.In(0) != ctxType || fnType.In(1) != wsConnType || !fnType.Out(0).Implements(errType) {
		panic("kite: WS handler must be func(context.Context, *kite.WSConn, In) error")
	}

	inType := fnType.In(2)
	structType := inType
	for structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	graph := r.Graph()
	sig, err := paramspec.ParseSignature("UPGRADE", r.fullPath(path), structType, graph.Has)
	if err != nil {
		panic(err)
	}
	if sig.BodyParam != nil || sig.FormParam != nil {
		panic("kite: WS " + path + " declares a body or form parameter, which web-socket endpoints cannot bind")
	}

	scoped := false
	if len(sig.Dependencies) > 0 {
		plan, err := graph.Plan(sig.Dependencies)
		if err != nil {
			panic(err)
		}
		scoped = plan.Scoped
	}
	sig.Scoped = scoped

	wsHandler := websocket.Handler(func(ws *websocket.Conn) {
		req := ws.Request()
		ctx := req.Context()

		inPtr := reflect.New(structType)
		inVal := inPtr.Elem()

		for _, p := range sig.Params {
			bindWSParam(inVal, p, req)
		}

		var resolverParams []paramspec.ParamDescriptor
		for _, p := range sig.PrimitiveParams {
			if p.GoType == resolverType {
				resolverParams = append(resolverParams, p)
			}
		}

		var resolver *depgraph.Resolver
		if len(sig.DependencyParams) > 0 || len(resolverParams) > 0 {
			resolver = graph.Root()
			if scoped {
				resolver = resolver.NewChildScope()
				defer resolver.Close(nil)
			}
			for _, p := range sig.DependencyParams {
				v, err := resolver.Resolve(ctx, p.GoType)
				if err != nil {
					_ = ws.Close()
					return
				}
				inVal.FieldByIndex(p.FieldIndex).Set(v)
			}
			for _, p := range resolverParams {
				inVal.FieldByIndex(p.FieldIndex).Set(reflect.ValueOf(resolver))
			}
		}

		argIn := inVal
		if fnType.In(2).Kind() == reflect.Ptr {
			argIn = inPtr
		}
		results := fnVal.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(ws), argIn})
		if errVal := results[0]; !errVal.IsNil() {
			r.Logger().Error("websocket handler returned an error", "error", errVal.Interface())
		}
	})

	r.Handle("UPGRADE", path, func(c *Ctx) error {
		wsHandler.ServeHTTP(c.Writer(), c.Request())
		return nil
	})
}

// bindWSParam extracts a Path/Query/Header/Cookie value ahead of the
// handshake; there is no response to aggregate validation failures
// into, so a param that fails to decode is simply left at its zero
// value rather than rejecting the upgrade (the connection itself has
// no problem+json channel to report through).
func bindWSParam(inVal reflect.Value, p paramspec.ParamDescriptor, r *http.Request) {
	field := inVal.FieldByIndex(p.FieldIndex)
	var raw string
	switch p.Role {
	case paramspec.RolePath:
		raw = r.PathValue(p.SourceKey)
	case paramspec.RoleQuery:
		raw = r.URL.Query().Get(p.SourceKey)
	case paramspec.RoleHeader:
		raw = r.Header.Get(p.SourceKey)
	case paramspec.RoleCookie:
		if ck, err := r.Cookie(p.SourceKey); err == nil {
			raw = ck.Value
		}
	default:
		return
	}
	if raw == "" {
		if p.HasDefault {
			raw = p.Default
		} else {
			return
		}
	}
	if p.Decoder == nil {
		return
	}
	if v, err := p.Decoder(raw); err == nil {
		if field.Kind() == reflect.Ptr {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(v)
			field.Set(ptr)
		} else {
			field.Set(v)
		}
	}
}
