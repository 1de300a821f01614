package paramspec

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Constraints is the recognized predicate bag from §3: parsed out of a
// field's `validate:"..."` tag as comma-separated key=value pairs.
type Constraints struct {
	MinLength  *int
	MaxLength  *int
	Min        *float64
	Max        *float64
	Gt         *float64
	Ge         *float64
	Lt         *float64
	Le         *float64
	Pattern    *regexp.Regexp
	MultipleOf *float64
	EnumOf     []string
	MinItems   *int
	MaxItems   *int
	MaxFiles   *int
}

// ParseConstraints parses a `validate:"min_length=1,pattern=@"`-style tag
// value into a Constraints bag. Unknown keys are ignored.
func ParseConstraints(raw string) Constraints {
	var c Constraints
	if raw == "" {
		return c
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "min_length":
			c.MinLength = intPtr(val)
		case "max_length":
			c.MaxLength = intPtr(val)
		case "min":
			c.Min = floatPtr(val)
		case "max":
			c.Max = floatPtr(val)
		case "gt":
			c.Gt = floatPtr(val)
		case "ge":
			c.Ge = floatPtr(val)
		case "lt":
			c.Lt = floatPtr(val)
		case "le":
			c.Le = floatPtr(val)
		case "pattern":
			if re, err := regexp.Compile(val); err == nil {
				c.Pattern = re
			}
		case "multiple_of":
			c.MultipleOf = floatPtr(val)
		case "enum":
			c.EnumOf = strings.Split(val, "|")
		case "min_items":
			c.MinItems = intPtr(val)
		case "max_items":
			c.MaxItems = intPtr(val)
		case "max_files":
			c.MaxFiles = intPtr(val)
		}
	}
	return c
}

func intPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func floatPtr(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Validate applies c against a decoded string value and its numeric
// form (isNumeric=false if it isn't numeric), returning every violation
// message rather than stopping at the first (§4.2: "violations are
// collected, not short-circuited").
func (c Constraints) Validate(raw string, numeric float64, isNumeric bool, itemCount int, hasItemCount bool) []string {
	var errs []string
	if c.MinLength != nil && len(raw) < *c.MinLength {
		errs = append(errs, "length must be >= "+strconv.Itoa(*c.MinLength))
	}
	if c.MaxLength != nil && len(raw) > *c.MaxLength {
		errs = append(errs, "length must be <= "+strconv.Itoa(*c.MaxLength))
	}
	if c.Pattern != nil && !c.Pattern.MatchString(raw) {
		errs = append(errs, "must match pattern "+c.Pattern.String())
	}
	if len(c.EnumOf) > 0 && !contains(c.EnumOf, raw) {
		errs = append(errs, "must be one of "+strings.Join(c.EnumOf, ", "))
	}
	if isNumeric {
		if c.Min != nil && numeric < *c.Min {
			errs = append(errs, "must be >= "+formatFloat(*c.Min))
		}
		if c.Max != nil && numeric > *c.Max {
			errs = append(errs, "must be <= "+formatFloat(*c.Max))
		}
		if c.Gt != nil && numeric <= *c.Gt {
			errs = append(errs, "must be > "+formatFloat(*c.Gt))
		}
		if c.Ge != nil && numeric < *c.Ge {
			errs = append(errs, "must be >= "+formatFloat(*c.Ge))
		}
		if c.Lt != nil && numeric >= *c.Lt {
			errs = append(errs, "must be < "+formatFloat(*c.Lt))
		}
		if c.Le != nil && numeric > *c.Le {
			errs = append(errs, "must be <= "+formatFloat(*c.Le))
		}
		if c.MultipleOf != nil && *c.MultipleOf != 0 {
			if remainder := numeric / *c.MultipleOf; remainder != float64(int64(remainder)) {
				errs = append(errs, "must be a multiple of "+formatFloat(*c.MultipleOf))
			}
		}
	}
	if hasItemCount {
		if c.MinItems != nil && itemCount < *c.MinItems {
			errs = append(errs, "must have at least "+strconv.Itoa(*c.MinItems)+" items")
		}
		if c.MaxItems != nil && itemCount > *c.MaxItems {
			errs = append(errs, "must have at most "+strconv.Itoa(*c.MaxItems)+" items")
		}
	}
	return errs
}

// ValidateValue runs Validate against an already-decoded reflect.Value,
// used for constraints attached to a structured body's own fields
// (§8 "structured body of nested optional fields with min/max/pattern
// constraints") rather than a textual param already available as a raw
// string.
func (c Constraints) ValidateValue(v reflect.Value) []string {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	var raw string
	var numeric float64
	var isNumeric bool
	var itemCount int
	var hasItemCount bool

	switch v.Kind() {
	case reflect.String:
		raw = v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		numeric = float64(v.Int())
		isNumeric = true
		raw = strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		numeric = float64(v.Uint())
		isNumeric = true
		raw = strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		numeric = v.Float()
		isNumeric = true
		raw = formatFloat(numeric)
	case reflect.Slice, reflect.Array:
		itemCount = v.Len()
		hasItemCount = true
	}
	return c.Validate(raw, numeric, isNumeric, itemCount, hasItemCount)
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
