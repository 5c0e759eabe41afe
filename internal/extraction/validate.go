package extraction

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"medthread/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func schemaValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.Split(fld.Tag.Get("json"), ",")[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Enforce validates bounds and enums and nulls out each offending value rather
// than rejecting the record. List elements and map entries are dropped
// individually; scalars and sub-objects are set to null.
func Enforce(f *models.Features) []FieldIssue {
	if f == nil {
		return nil
	}
	var issues []FieldIssue
	for pass := 0; pass < 3; pass++ {
		err := schemaValidator().Struct(f)
		if err == nil {
			break
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			issues = append(issues, FieldIssue{Field: "*", Reason: err.Error()})
			break
		}
		dropSlice := map[string][]int{}
		dropKey := map[string][]string{}
		for _, fe := range verrs {
			top, selector := topLevel(fe.Namespace())
			issues = append(issues, FieldIssue{
				Field:  strings.TrimPrefix(fe.Namespace(), "Features."),
				Reason: fmt.Sprintf("failed %s=%s (value %v)", fe.Tag(), fe.Param(), fe.Value()),
			})
			switch {
			case selector == "":
				zeroField(f, top)
			case isIndex(selector):
				i, _ := strconv.Atoi(selector)
				dropSlice[top] = append(dropSlice[top], i)
			default:
				dropKey[top] = append(dropKey[top], selector)
			}
		}
		if idx := dropSlice["side_effects"]; len(idx) > 0 {
			f.SideEffects = removeIndices(f.SideEffects, idx)
		}
		for _, k := range dropKey["drug_sentiments"] {
			delete(f.DrugSentiments, k)
		}
	}
	f.EnsureLists()
	sortIssues(issues)
	return issues
}

// topLevel splits "Features.side_effects[2].severity" into ("side_effects", "2"),
// "Features.drug_sentiments[Ozempic 0.5mg]" into ("drug_sentiments", "Ozempic 0.5mg")
// and "Features.age" into ("age", ""). Map keys may contain dots and brackets.
func topLevel(ns string) (string, string) {
	rest := strings.TrimPrefix(ns, "Features.")
	open := strings.IndexByte(rest, '[')
	dot := strings.IndexByte(rest, '.')
	if open < 0 || (dot >= 0 && dot < open) {
		if dot >= 0 {
			return rest[:dot], ""
		}
		return rest, ""
	}
	field := rest[:open]
	if end := strings.IndexByte(rest[open:], ']'); end > 0 && isIndex(rest[open+1:open+end]) {
		return field, rest[open+1 : open+end]
	}
	end := strings.LastIndexByte(rest, ']')
	if end <= open {
		return field, ""
	}
	return field, rest[open+1 : end]
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func zeroField(f *models.Features, jsonName string) {
	idx, ok := featureFields[jsonName]
	if !ok {
		return
	}
	fv := reflect.ValueOf(f).Elem().Field(idx)
	fv.Set(reflect.Zero(fv.Type()))
}

func removeIndices[T any](in []T, drop []int) []T {
	skip := make(map[int]struct{}, len(drop))
	for _, i := range drop {
		skip[i] = struct{}{}
	}
	out := make([]T, 0, len(in))
	for i, v := range in {
		if _, ok := skip[i]; !ok {
			out = append(out, v)
		}
	}
	return out
}
