package intent

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	xerrors "VoiceDot/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(Intent)
		if in.Type == TypeSingle && len(in.Items) != 1 {
			sl.ReportError(in.Items, "items", "Items", "single_item", "")
		}
	}, Intent{})
	return v
}

// Decode 严格解析模型输出的意图 JSON：拒绝未知字段与多余内容，
// 补齐缺省值后执行结构校验。
func Decode(raw []byte) (*Intent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var in Intent
	if err := dec.Decode(&in); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "intent schema mismatch")
	}
	if _, err := dec.Token(); !stdErrors.Is(err, io.EOF) {
		return nil, xerrors.New(xerrors.CodeValidation, "intent schema mismatch: trailing data")
	}

	in.applyDefaults()
	if err := Validate(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

// Validate 对意图执行结构校验。
func Validate(in *Intent) error {
	if in == nil {
		return xerrors.New(xerrors.CodeValidation, "intent is required")
	}
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if stdErrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return xerrors.Newf(xerrors.CodeValidation, "intent schema mismatch: %s", describe(fieldErrs[0]))
		}
		return xerrors.Wrap(xerrors.CodeValidation, err, "intent schema mismatch")
	}
	return nil
}

func (in *Intent) applyDefaults() {
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = TypeSingle
		if len(in.Items) > 1 {
			in.Type = TypeBatch
		}
	}
	if strings.TrimSpace(in.Language) == "" {
		in.Language = "en"
	}
	for i := range in.Items {
		in.Items[i].Action = strings.ToLower(strings.TrimSpace(in.Items[i].Action))
	}
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Intent.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must contain at least %s entry", field, fe.Param())
	case "eq", "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "single_item":
		return "single intent must contain exactly one item"
	case "datetime":
		return field + " must be an RFC 3339 timestamp"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
