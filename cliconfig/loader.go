// Package cliconfig loads command configuration structs from CLI flags,
// their environment variables, and an optional config file.
//
// Each field of the config struct names its flag with a `cli` tag, and may
// add `normalize`, `validate` and `label` tags.
package cliconfig

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/buildkite/datapipeline-deploy/internal/osutil"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

type Loader struct {
	// The context that is passed when using a urfave/cli action
	CLI *cli.Context

	// The struct that the config values will be loaded into
	Config any

	// The file that was used when loading this configuration
	File *File
}

// Load fills in the config and checks its validations. Settings come, in
// increasing order of precedence, from the flag defaults, the config file,
// and the flags or their environment variables.
func (l *Loader) Load() error {
	// A config file is only ever passed in explicitly, so it must exist.
	if path := l.CLI.String("config"); path != "" {
		file := File{Path: path}
		if !file.Exists() {
			absolutePath, _ := file.AbsolutePath()
			return fmt.Errorf("a configuration file could not be found at: %q", absolutePath)
		}
		if err := file.Load(); err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		l.File = &file
	}

	fields, err := reflections.FieldsDeep(l.Config)
	if err != nil {
		return fmt.Errorf("listing config fields: %w", err)
	}

	for _, fieldName := range fields {
		cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli")
		if cliName != "" {
			if err := l.setFieldValueFromCLI(fieldName, cliName); err != nil {
				return fmt.Errorf("setting config field %s: %w", fieldName, err)
			}
		}

		normalization, _ := reflections.GetFieldTag(l.Config, fieldName, "normalize")
		if normalization != "" {
			if err := l.normalizeField(fieldName, normalization); err != nil {
				return fmt.Errorf("normalizing config field %s: %w", fieldName, err)
			}
		}

		validationRules, _ := reflections.GetFieldTag(l.Config, fieldName, "validate")
		if validationRules != "" {
			// Use the label if there is one, then the cli name, then
			// the struct field name.
			label, _ := reflections.GetFieldTag(l.Config, fieldName, "label")
			if label == "" {
				label = cliName
			}
			if label == "" {
				label = fieldName
			}

			if err := l.validateField(fieldName, label, validationRules); err != nil {
				return err
			}
		}
	}

	return nil
}

func (l Loader) setFieldValueFromCLI(fieldName, cliName string) error {
	fieldKind, err := reflections.GetFieldKind(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the kind of struct field %q: %w", fieldName, err)
	}

	var value any

	// Start with the config file's value, converted to the field's type
	if l.File != nil {
		if configFileValue, ok := l.File.Config[cliName]; ok {
			switch fieldKind {
			case reflect.String:
				value = configFileValue
			case reflect.Slice:
				value = strings.Split(configFileValue, ",")
			case reflect.Bool:
				value, _ = strconv.ParseBool(configFileValue)
			case reflect.Int:
				value, _ = strconv.Atoi(configFileValue)
			default:
				return fmt.Errorf("unable to convert string to type %s", fieldKind)
			}
		}
	}

	// A flag (or its env var) beats the config file, and the flag's default
	// is used when neither has a value.
	if value == nil || l.cliValueIsSet(cliName) {
		switch fieldKind {
		case reflect.String:
			value = l.CLI.String(cliName)
		case reflect.Slice:
			value = l.CLI.StringSlice(cliName)
		case reflect.Bool:
			value = l.CLI.Bool(cliName)
		case reflect.Int:
			value = l.CLI.Int(cliName)
		default:
			return fmt.Errorf("unable to handle type: %s", fieldKind)
		}
	}

	if err := reflections.SetField(l.Config, fieldName, value); err != nil {
		return fmt.Errorf("setting value field %q to %q: %w", fieldName, value, err)
	}

	return nil
}

func (l Loader) Errorf(format string, v ...any) error {
	suffix := fmt.Sprintf(" See: `%s %s --help`", l.CLI.App.Name, l.CLI.Command.Name)

	return fmt.Errorf(format+suffix, v...)
}

func (l Loader) cliValueIsSet(cliName string) bool {
	if l.CLI.IsSet(cliName) || l.CLI.GlobalIsSet(cliName) {
		return true
	}

	// cli.Context#IsSet only checks to see if the command was set via the cli, not
	// via the environment. So here we find the name of the EnvVar, and return
	// true if it was set.
	for _, flag := range l.CLI.Command.Flags {
		name, _ := reflections.GetField(flag, "Name")
		envVar, _ := reflections.GetField(flag, "EnvVar")
		if name != cliName {
			continue
		}
		if envVarStr, ok := envVar.(string); ok && envVarStr != "" {
			for env := range strings.SplitSeq(envVarStr, ",") {
				if os.Getenv(strings.TrimSpace(env)) != "" {
					return true
				}
			}
		}
	}

	return false
}

func (l Loader) fieldValueIsEmpty(fieldName string) bool {
	value, _ := reflections.GetField(l.Config, fieldName)
	fieldKind, _ := reflections.GetFieldKind(l.Config, fieldName)

	switch fieldKind {
	case reflect.String:
		return value == ""
	case reflect.Slice:
		return reflect.ValueOf(value).Len() == 0
	case reflect.Bool:
		return value == false
	case reflect.Int:
		return value == 0
	default:
		panic(fmt.Sprintf("Can't determine empty-ness for field type %s", fieldKind))
	}
}

func (l Loader) validateField(fieldName, label, validationRules string) error {
	for rule := range strings.SplitSeq(validationRules, ",") {
		switch {
		case rule == "required":
			if l.fieldValueIsEmpty(fieldName) {
				return l.Errorf("Missing %s.", label)
			}

		case rule == "file-exists":
			value, _ := reflections.GetField(l.Config, fieldName)
			if path, ok := value.(string); ok && path != "" && !isURL(path) {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("couldn't find %s located at %s: %w", label, path, err)
				}
			}

		case strings.HasPrefix(rule, "oneof="):
			value, _ := reflections.GetField(l.Config, fieldName)
			allowed := strings.Fields(strings.TrimPrefix(rule, "oneof="))
			if s, ok := value.(string); ok && s != "" && !slices.Contains(allowed, s) {
				return l.Errorf("Invalid %s %q, must be one of %s.", label, s, strings.Join(allowed, ", "))
			}

		default:
			return fmt.Errorf("unknown config validation rule %q", rule)
		}
	}

	return nil
}

func (l Loader) normalizeField(fieldName, normalization string) error {
	value, _ := reflections.GetField(l.Config, fieldName)
	fieldKind, _ := reflections.GetFieldKind(l.Config, fieldName)

	switch normalization {
	case "location":
		if fieldKind != reflect.String {
			return fmt.Errorf("%s normalization only works on string fields", normalization)
		}

		path, _ := value.(string)
		// A location may also be a URL, which is left alone.
		if isURL(path) {
			return nil
		}

		normalizedPath, err := osutil.NormalizeFilePath(path)
		if err != nil {
			return err
		}
		return reflections.SetField(l.Config, fieldName, normalizedPath)

	default:
		return fmt.Errorf("unknown normalization %q", normalization)
	}
}

func isURL(s string) bool {
	return strings.Contains(s, "://")
}
