package envstruct

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var (
	ErrEnvNotSet    = errors.New("environment variable not set")
	ErrInvalidValue = errors.New("v must be a pointer to a struct")
	ErrParse        = errors.New("parse environment variable")
)

var durationType = reflect.TypeFor[time.Duration]()

// Populate populates the fields of the pointer to struct v with values from the environment.
//
// lookupEnv is used to look up environment variables. It has the same signature as [os.LookupEnv].
// Fields in the struct v must be tagged with `env:"ENV_VAR"` where ENV_VAR is the name of the environment variable.
// If no environment variable matching ENV_VAR is provided, the field must be tagged with default value
// `envDefault:"value"` or else ErrEnvNotSet is returned.
//
// Supported field types are string, bool, int, float64 and [time.Duration]. An empty value leaves a non-string
// field at its zero value.
func Populate(v any, lookupEnv func(string) (string, bool)) error {
	ptrRef := reflect.ValueOf(v)
	if ptrRef.Kind() != reflect.Ptr {
		return fmt.Errorf("%w: not pointer: %v", ErrInvalidValue, v)
	}
	ref := ptrRef.Elem()
	if ref.Kind() != reflect.Struct {
		return fmt.Errorf("%w: not struct: %v", ErrInvalidValue, v)
	}

	refType := ref.Type()

	var (
		errorList  []error
		ok         bool
		envVarName string
	)

	for i := range refType.NumField() {
		refField := ref.Field(i)
		refTypeField := refType.Field(i)
		tag := refTypeField.Tag

		envVarName, ok = tag.Lookup("env")
		if !ok {
			continue
		}
		if !refField.CanSet() {
			errorList = append(errorList, fmt.Errorf("%w: cannot set field: %s",
				ErrInvalidValue, refTypeField.Name))
			continue
		}

		var (
			val string
			err error
		)
		if val, err = envLookupWithFallback(envVarName, tag, lookupEnv); err != nil {
			errorList = append(errorList, err)
			continue
		}

		if err = setField(refField, val); err != nil {
			errorList = append(errorList, fmt.Errorf("%w - field: %s, type: %s, env: %s",
				err, refTypeField.Name, refField.Type().String(), envVarName))
		}
	}

	if len(errorList) != 0 {
		// Join the errors into a single error.
		return errors.Join(errorList...)
	}

	return nil
}

func setField(field reflect.Value, val string) error {
	if field.Type() == durationType {
		if val == "" {
			field.SetInt(0)
			return nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	//nolint:exhaustive // unsupported kinds are rejected by the default case.
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)
	case reflect.Bool:
		if val == "" {
			field.SetBool(false)
			return nil
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}
		field.SetBool(b)
	case reflect.Int:
		if val == "" {
			field.SetInt(0)
			return nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}
		field.SetInt(int64(n))
	case reflect.Float64:
		if val == "" {
			field.SetFloat(0)
			return nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("%w: unsupported field kind", ErrInvalidValue)
	}
	return nil
}

func envLookupWithFallback(
	envVarName string, tag reflect.StructTag, lookupEnv func(string) (string, bool)) (string, error) {
	envVarValue, ok := lookupEnv(envVarName)
	if !ok {
		envVarValue, ok = tag.Lookup("envDefault")
		if !ok {
			return "", fmt.Errorf("%w: environment variable not set: %s", ErrEnvNotSet, envVarName)
		}
	}
	return envVarValue, nil
}
