package configreader

import (
	"encoding"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"fknsrs.biz/p/clipcatalog/internal/stringutil"
)

// Read fills out, a pointer to a tagged struct, from a config file, then
// command-line flags, then environment variables. Later sources win. The
// config file location is itself a parameter named "config" and may come
// from any of the three.
func Read(program string, arguments, environment []string, out interface{}) error {
	fields, err := fieldsOf(out)
	if err != nil {
		return fmt.Errorf("configreader.Read: %w", err)
	}

	configPath, ok := lookupArgument(arguments, "config")
	if !ok {
		configPath, ok = lookupEnvironment(environment, "config")
	}
	if !ok {
		if f, found := fields.find("config"); found {
			configPath = f.String()
		}
	}

	if configPath != "" {
		if err := readFile(configPath, out); err != nil {
			return fmt.Errorf("configreader.Read: %w", err)
		}
	}

	if err := readArguments(program, arguments, fields, os.Stderr); err != nil {
		return fmt.Errorf("configreader.Read: could not read command-line flags: %w", err)
	}

	if err := readEnvironment(environment, fields); err != nil {
		return fmt.Errorf("configreader.Read: could not read environment variables: %w", err)
	}

	return nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	textType     = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// field is one configurable struct field. It satisfies flag.Value so the
// same parsing serves flags and the environment.
type field struct {
	name  string
	help  string
	alias string
	value reflect.Value
}

func (f *field) String() string {
	if !f.value.IsValid() {
		return ""
	}

	if m, ok := f.value.Addr().Interface().(encoding.TextMarshaler); ok {
		d, err := m.MarshalText()
		if err != nil {
			return ""
		}
		return string(d)
	}

	if f.value.Type() == durationType {
		return time.Duration(f.value.Int()).String()
	}

	return fmt.Sprint(f.value.Interface())
}

func (f *field) Set(s string) error {
	if u, ok := f.value.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(s))
	}

	switch {
	case f.value.Type() == durationType:
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		f.value.SetInt(int64(d))
	case f.value.Kind() == reflect.String:
		f.value.SetString(s)
	case f.value.Kind() == reflect.Bool:
		f.value.SetBool(stringutil.LooksTrue(s))
	case f.value.Kind() == reflect.Int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		f.value.SetInt(int64(n))
	default:
		return fmt.Errorf("unsupported type %s", f.value.Type())
	}

	return nil
}

func (f *field) IsBoolFlag() bool {
	return f.value.Kind() == reflect.Bool
}

type fieldList []*field

func (l fieldList) find(name string) (*field, bool) {
	for _, f := range l {
		if f.name == name {
			return f, true
		}
	}

	return nil, false
}

func supported(t reflect.Type) bool {
	if reflect.PointerTo(t).Implements(textType) || t == durationType {
		return true
	}

	switch t.Kind() {
	case reflect.String, reflect.Bool, reflect.Int:
		return true
	default:
		return false
	}
}

func fieldsOf(out interface{}) (fieldList, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("configreader.fieldsOf: value must be a non-nil pointer to a struct; was instead %T", out)
	}

	rv = rv.Elem()
	rt := rv.Type()

	var l fieldList
	for i := 0; i < rt.NumField(); i++ {
		tf := rt.Field(i)
		if !tf.IsExported() {
			continue
		}

		name := tf.Tag.Get("name")
		if name == "" {
			name = stringutil.PascalToSnake(tf.Name)
		}
		if name == "-" {
			continue
		}

		if !supported(tf.Type) {
			return nil, fmt.Errorf("configreader.fieldsOf: parameter %s (%s) has unsupported type %s", tf.Name, name, tf.Type)
		}

		l = append(l, &field{
			name:  name,
			help:  tf.Tag.Get("help"),
			alias: tf.Tag.Get("env"),
			value: rv.Field(i),
		})
	}

	return l, nil
}

func lookupArgument(arguments []string, name string) (string, bool) {
	for i := 0; i < len(arguments); i++ {
		arg := strings.TrimPrefix(strings.TrimPrefix(arguments[i], "-"), "-")
		if arg == arguments[i] {
			continue
		}

		if arg == name && i+1 < len(arguments) {
			return arguments[i+1], true
		}

		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, true
		}
	}

	return "", false
}

// lookupEnvironment matches variable names case-insensitively.
func lookupEnvironment(environment []string, name string) (string, bool) {
	for _, e := range environment {
		k, v, ok := strings.Cut(e, "=")
		if ok && strings.EqualFold(k, name) {
			return v, true
		}
	}

	return "", false
}

func readFile(filePath string, out interface{}) error {
	var decode func(r io.Reader) error

	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		decode = func(r io.Reader) error { return yaml.NewDecoder(r).Decode(out) }
	case ".toml":
		decode = func(r io.Reader) error { return toml.NewDecoder(r).Decode(out) }
	default:
		return fmt.Errorf("readFile: could not determine file type for %q", filePath)
	}

	fd, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("readFile: %w", err)
	}
	defer fd.Close()

	if err := decode(fd); err != nil {
		return fmt.Errorf("readFile: could not parse %q: %w", filePath, err)
	}

	return nil
}

// ErrHelp is returned when the arguments asked for usage information, which
// has already been written.
var ErrHelp = flag.ErrHelp

func readArguments(program string, arguments []string, fields fieldList, output io.Writer) error {
	flagSet := flag.NewFlagSet(program, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprintf(output, "Usage: %s [OPTIONS]\n", program)
		flagSet.PrintDefaults()
	}

	for _, f := range fields {
		flagSet.Var(f, f.name, f.help)
	}

	if err := flagSet.Parse(arguments); err != nil {
		return err
	}

	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}

	return nil
}

func readEnvironment(environment []string, fields fieldList) error {
	var errs []error

	for _, f := range fields {
		v, ok := lookupEnvironment(environment, f.name)
		if f.alias != "" {
			if av, aok := lookupEnvironment(environment, f.alias); aok {
				v, ok = av, true
			}
		}
		if !ok {
			continue
		}

		if err := f.Set(v); err != nil {
			errs = append(errs, fmt.Errorf("parameter %s: %w", f.name, err))
		}
	}

	return errors.Join(errs...)
}
