package paramspec

import (
	"fmt"
	"reflect"

	"github.com/kitehttp/kite/typeinfo"
)

// ParamDescriptor is one resolved endpoint parameter (§3).
type ParamDescriptor struct {
	Name        string
	Role        Role
	SourceKey   string // external name: header/query key or path segment
	Alias       string
	Type        *typeinfo.Descriptor
	FieldIndex  []int // reflect.Value.FieldByIndex path into the In struct
	GoType      reflect.Type
	HasDefault  bool
	Default     string
	Required    bool
	Constraints Constraints
	Decoder     Decoder
	MultiValue  bool // true iff sequence type from a source that can repeat
}

// EndpointSignature is the parsed shape of one handler (§3).
type EndpointSignature struct {
	RoutePath string
	Method    string

	InType reflect.Type
	Params []ParamDescriptor

	Dependencies     []reflect.Type
	DependencyParams []ParamDescriptor
	PrimitiveParams  []ParamDescriptor
	PluginParams     []ParamDescriptor

	BodyParam *ParamDescriptor
	FormParam *ParamDescriptor

	Scoped bool
}

// ParseSignature walks inType's fields (the handler's "in" struct plays
// the role of the declared parameter list, §4.2) and classifies each
// per the decision table, expanding structured Path/Query/Header/Cookie
// fields into one sub-parameter per field (§4.2, §9 "structured-body
// param-pack").
func ParseSignature(method, routePath string, inType reflect.Type, isDependency DependencyChecker) (*EndpointSignature, error) {
	sig := &EndpointSignature{Method: method, RoutePath: routePath, InType: inType}
	if inType == nil {
		return sig, nil
	}
	for inType.Kind() == reflect.Ptr {
		inType = inType.Elem()
	}
	if inType.Kind() != reflect.Struct {
		return sig, nil
	}

	var bodyCount, formCount int
	for i := 0; i < inType.NumField(); i++ {
		f := inType.Field(i)
		if !f.IsExported() {
			continue
		}
		role, key := classify(f, routePath, isDependency)

		desc, _ := typeinfo.IntrospectField(f)

		switch role {
		case RolePath, RoleQuery, RoleHeader, RoleCookie:
			baseType := f.Type
			for baseType.Kind() == reflect.Ptr {
				baseType = baseType.Elem()
			}
			if baseType.Kind() == reflect.Struct && desc.IsStructured {
				expanded := expandStructured(baseType, []int{i}, role, routePath)
				sig.Params = append(sig.Params, expanded...)
				continue
			}
			sig.Params = append(sig.Params, buildParam(f, []int{i}, role, key, desc))
		case RoleDependency:
			sig.Dependencies = append(sig.Dependencies, f.Type)
			sig.DependencyParams = append(sig.DependencyParams, ParamDescriptor{
				Name: f.Name, Role: RoleDependency, GoType: f.Type, FieldIndex: []int{i},
			})
		case RolePrimitive:
			// Bound directly by the runtime from the live request/
			// response/context; no decoding or validation needed.
			sig.PrimitiveParams = append(sig.PrimitiveParams, ParamDescriptor{
				Name: f.Name, Role: RolePrimitive, GoType: f.Type, FieldIndex: []int{i},
			})
		case RolePlugin:
			sig.PluginParams = append(sig.PluginParams, buildParam(f, []int{i}, role, key, desc))
		case RoleBody:
			bodyCount++
			p := buildParam(f, []int{i}, role, key, desc)
			sig.BodyParam = &p
		case RoleForm:
			formCount++
			p := buildParam(f, []int{i}, role, key, desc)
			sig.FormParam = &p
		case RoleFile:
			p := buildParam(f, []int{i}, role, key, desc)
			sig.Params = append(sig.Params, p)
		}
	}

	if bodyCount > 0 && formCount > 0 {
		return nil, fmt.Errorf("paramspec: %s %s declares both a body and a form parameter; they are mutually exclusive", method, routePath)
	}
	if bodyCount > 1 {
		return nil, fmt.Errorf("paramspec: %s %s declares more than one body parameter", method, routePath)
	}
	if formCount > 1 {
		return nil, fmt.Errorf("paramspec: %s %s declares more than one form parameter", method, routePath)
	}

	return sig, nil
}

func expandStructured(structType reflect.Type, parentIndex []int, role Role, routePath string) []ParamDescriptor {
	var out []ParamDescriptor
	for i := 0; i < structType.NumField(); i++ {
		f := structType.Field(i)
		if !f.IsExported() {
			continue
		}
		key := sourceKeyForRole(f, role)
		desc, _ := typeinfo.IntrospectField(f)
		index := append(append([]int(nil), parentIndex...), i)
		out = append(out, buildParam(f, index, role, key, desc))
	}
	return out
}

func sourceKeyForRole(f reflect.StructField, role Role) string {
	switch role {
	case RolePath:
		return orName(f.Tag.Get("path"), f.Name)
	case RoleQuery:
		return orName(f.Tag.Get("query"), f.Name)
	case RoleHeader:
		return orName(f.Tag.Get("header"), f.Name)
	case RoleCookie:
		return orName(f.Tag.Get("cookie"), f.Name)
	default:
		return f.Name
	}
}

func buildParam(f reflect.StructField, index []int, role Role, key string, desc *typeinfo.Descriptor) ParamDescriptor {
	alias, _ := desc.Override("alias")
	if alias != "" {
		key = alias
	}
	def, hasDefault := desc.Override("default")
	validateTag, _ := desc.Override("validate")

	goType := desc.Go
	multi := desc.IsSequence && (role == RoleHeader || role == RoleQuery || role == RoleCookie)

	decodeType := goType
	if multi {
		decodeType = desc.ItemType
	}

	p := ParamDescriptor{
		Name:        f.Name,
		Role:        role,
		SourceKey:   key,
		Alias:       alias,
		Type:        desc,
		FieldIndex:  index,
		GoType:      f.Type,
		HasDefault:  hasDefault,
		Default:     def,
		Required:    !hasDefault && !desc.Nullable,
		Constraints: ParseConstraints(validateTag),
		MultiValue:  multi,
	}
	if role == RolePath || role == RoleQuery || role == RoleHeader || role == RoleCookie {
		if decodeType != nil {
			p.Decoder = ScalarDecoder(decodeType)
		}
	}
	return p
}
